package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New(store, 24*time.Hour, nil).WithClock(clk.now)

	var got item
	hit, err := c.Get(ctx, Key("excel", "abc", "5"), &got)
	require.NoError(t, err)
	assert.False(t, hit)

	v := 1.5
	require.NoError(t, c.Put(ctx, Key("excel", "abc", "5"), item{Name: "acme", Value: &v}))

	clk.t = clk.t.Add(23 * time.Hour)
	hit, err = c.Get(ctx, Key("excel", "abc", "5"), &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "acme", got.Name)
	require.NotNil(t, got.Value)
	assert.Equal(t, 1.5, *got.Value)

	clk.t = clk.t.Add(time.Hour)
	hit, err = c.Get(ctx, Key("excel", "abc", "5"), &got)
	require.NoError(t, err)
	assert.False(t, hit, "entries expire 24h after they were written")

	require.NoError(t, c.Put(ctx, Key("excel", "abc", "5"), item{Name: "fresh"}))
	hit, err = c.Get(ctx, Key("excel", "abc", "5"), &got)
	require.NoError(t, err)
	assert.True(t, hit, "rewriting restarts the clock")
	assert.Nil(t, got.Value, "absent stays absent through the cache")

	require.NoError(t, c.Clear(ctx))
	hit, err = c.Get(ctx, Key("excel", "abc", "5"), &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CopiesValue(t *testing.T) {
	s := NewMemoryStore()
	buf := []byte(`{"name":"a"}`)
	require.NoError(t, s.Put(context.Background(), Entry{Key: "k", Value: buf}))
	buf[9] = 'z'

	e, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(e.Value))
	assert.Equal(t, 1, s.Len())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(context.Background(), Entry{Key: "same", Value: []byte(`{}`), WrittenAt: time.Now()}))
	}
	names, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "same.json")}, names)
}

func TestFileStore_CorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	e, err := s.Get(context.Background(), "bad")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("VALDATA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("VALDATA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	s, err := NewPostgresStore(ctx, pool)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	exerciseStore(t, s)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("api", "XYZ", "5"), Key("api", "XYZ", "5"))
	assert.NotEqual(t, Key("api", "XYZ", "5"), Key("api", "XYZ", "4"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"), "parts are delimited")
	assert.Len(t, Key("x"), 64)
}
