// Package storage keeps task attachments on the local filesystem under
// <root>/tasks/<task id>/ and renders 300x300 previews for images.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"taskbot/internal/models"
)

const ThumbnailSize = 300

var (
	ErrEmptyFile           = errors.New("file is empty")
	ErrFileTooLarge        = errors.New("file exceeds the size limit")
	ErrExtensionNotAllowed = errors.New("file type is not allowed")
	ErrOutsideRoot         = errors.New("path escapes the storage root")
)

// Допустимые расширения и их MIME-типы.
var allowedExtensions = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png", ".gif": "image/gif",
	".webp": "image/webp", ".bmp": "image/bmp",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain", ".csv": "text/csv",
	".zip": "application/zip", ".rar": "application/x-rar-compressed", ".7z": "application/x-7z-compressed",
}

func AllowedExtension(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

type LocalStore struct {
	root    string
	maxSize int64
}

func NewLocalStore(root string, maxSize int64) (*LocalStore, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(root, "tasks"), 0o755); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	return &LocalStore{root: root, maxSize: maxSize}, nil
}

func (s *LocalStore) MaxSize() int64 { return s.maxSize }

// StoreAttachment writes data under tasks/<taskID>/<uuid><ext> and returns
// paths relative to the root. A failed preview leaves ThumbnailPath empty.
func (s *LocalStore) StoreAttachment(data []byte, name, contentType, taskID string) (*models.StoredFile, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, len(data), s.maxSize)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, fmt.Errorf("invalid task id %q", taskID)
	}

	detected := mimetype.Detect(data)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}

	dir := filepath.Join(s.root, "tasks", taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}
	fileID := uuid.NewString()
	rel := filepath.ToSlash(filepath.Join("tasks", taskID, fileID+ext))
	if err := os.WriteFile(filepath.Join(s.root, rel), data, 0o644); err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}

	out := &models.StoredFile{Path: rel, Size: int64(len(data)), ContentType: contentType}
	if thumb, err := s.writeThumbnail(data, detected, filepath.Join("tasks", taskID, fileID)); err == nil {
		out.ThumbnailPath = thumb
	}
	return out, nil
}

func isImage(m *mimetype.MIME) bool {
	return m.Is("image/jpeg") || m.Is("image/png") || m.Is("image/gif") || m.Is("image/webp") || m.Is("image/bmp")
}

func (s *LocalStore) writeThumbnail(data []byte, m *mimetype.MIME, base string) (string, error) {
	if !isImage(m) {
		return "", errors.New("not an image")
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	thumb := Thumbnail(src, ThumbnailSize)

	var (
		buf bytes.Buffer
		ext string
	)
	switch {
	case m.Is("image/png"):
		ext, err = ".png", png.Encode(&buf, thumb)
	case m.Is("image/gif"):
		ext, err = ".gif", gif.Encode(&buf, thumb, nil)
	case m.Is("image/bmp"):
		ext, err = ".bmp", bmp.Encode(&buf, thumb)
	default:
		// webp has no encoder here, so it shares the jpeg path
		ext, err = ".jpg", jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	rel := filepath.ToSlash(base + "_thumb" + ext)
	if err := os.WriteFile(filepath.Join(s.root, rel), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return rel, nil
}

// Thumbnail scales src to fit within limit x limit keeping the aspect
// ratio. Images already small enough are returned unchanged.
func Thumbnail(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return src
	}
	if w >= h {
		h = max(1, h*limit/w)
		w = limit
	} else {
		w = max(1, w*limit/h)
		h = limit
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Open returns the stored file at a root-relative path.
func (s *LocalStore) Open(rel string) (*os.File, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *LocalStore) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}
