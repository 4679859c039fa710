package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	got, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	s := New(42, FlowNewCompany, "name", time.Hour, now)
	s.Set("name", "Acme")
	require.NoError(t, store.Save(ctx, s))

	got, err = store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, FlowNewCompany, got.Flow)
	assert.Equal(t, "Acme", got.Data["name"])

	got.Data["name"] = "changed"
	again, _ := store.Get(ctx, 42)
	assert.Equal(t, "Acme", again.Data["name"], "stored data is not shared with callers")

	require.NoError(t, store.Delete(ctx, 42))
	got, err = store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New(7, FlowComment, "text", time.Minute, now.Add(-2*time.Minute))))
	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "taskbot:session:-100123", Key(-100123))
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TASKBOT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TASKBOT_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, url)
	require.NoError(t, err)
	defer store.Close()

	s := New(987654, FlowComment, "text", time.Minute, time.Now())
	s.Set("task_id", "t-1")
	require.NoError(t, store.Save(ctx, s))
	defer store.Delete(ctx, s.ChatID)

	got, err := store.Get(ctx, s.ChatID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "t-1", got.Data["task_id"])
}
