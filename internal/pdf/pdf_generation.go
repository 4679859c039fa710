package pdf

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"

	"taskbot/internal/models"
)

// Generator renders task reports. Handlers depend on the interface.
type Generator interface {
	TaskReport(w io.Writer, data ReportData) error
}

// ReportGenerator writes A4 landscape task tables.
type ReportGenerator struct {
	FontPath string // TTF with Cyrillic glyphs, e.g. "assets/fonts/DejaVuSans.ttf"
	fontName string
}

type ReportData struct {
	Title       string
	GeneratedAt time.Time
	Location    *time.Location
	Tasks       []models.TaskSummary
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	return &ReportGenerator{FontPath: fontPath, fontName: "DejaVu"}
}

var columns = []struct {
	header string
	width  float64
}{
	{"Задача", 90},
	{"Компания", 60},
	{"Статус", 35},
	{"Дедлайн", 40},
	{"Срочно", 22},
}

func (g *ReportGenerator) TaskReport(w io.Writer, data ReportData) error {
	loc := data.Location
	if loc == nil {
		loc = time.UTC
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(data.Title, true)
	pdf.SetAuthor("taskbot", false)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)

	font := g.setupFont(pdf)
	tr := func(s string) string { return s }
	if font == "Helvetica" {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.AddPage()

	pdf.SetFont(font, "B", 16)
	pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
	pdf.SetFont(font, "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Сформировано: %s, задач: %d",
		data.GeneratedAt.In(loc).Format("02.01.2006 15:04"), len(data.Tasks))), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(font, "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range columns {
		pdf.CellFormat(c.width, 8, tr(c.header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(font, "", 9)
	for _, t := range data.Tasks {
		urgent := ""
		if t.Urgent {
			urgent = "да"
		}
		cells := []string{
			truncate(t.Title, 60),
			truncate(t.CompanyName, 40),
			t.Status.DisplayName(),
			t.Deadline.In(loc).Format("02.01.2006 15:04"),
			urgent,
		}
		for i, c := range columns {
			pdf.CellFormat(c.width, 7, tr(cells[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return pdf.Output(w)
}

// setupFont registers the UTF-8 font when it exists and falls back to a
// core font otherwise.
func (g *ReportGenerator) setupFont(pdf *gofpdf.Fpdf) string {
	if g.FontPath == "" {
		return "Helvetica"
	}
	if _, err := os.Stat(g.FontPath); err != nil {
		return "Helvetica"
	}
	pdf.AddUTF8Font(g.fontName, "", g.FontPath)
	pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	return g.fontName
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
