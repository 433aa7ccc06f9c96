package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/learnquest/internal/infra/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker_SkipsUnconfigured(t *testing.T) {
	c := NewChecker(Options{Store: newTestDB(t)})
	if len(c.checks) != 1 {
		t.Errorf("checks = %d, want 1", len(c.checks))
	}

	c = NewChecker(Options{Store: newTestDB(t), Cache: pingFunc(func(context.Context) error { return nil }), DataDir: t.TempDir()})
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3", len(c.checks))
	}
}

func TestChecker_RunOnceHealthy(t *testing.T) {
	c := NewChecker(Options{Store: newTestDB(t), DataDir: t.TempDir()})

	statuses := c.RunOnce(context.Background())
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.True(t, s.Healthy, "check %q: %s", s.Name, s.Error)
		assert.False(t, s.CheckedAt.IsZero())
	}
	assert.True(t, c.IsHealthy())
	assert.Equal(t, statuses, c.Statuses())
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(Options{Store: newTestDB(t)})

	// No statuses yet: vacuously healthy.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run")
	}
}

func TestChecker_CacheDown(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	c := NewChecker(Options{Store: newTestDB(t), Cache: down})

	statuses := c.RunOnce(context.Background())
	assert.False(t, c.IsHealthy())
	for _, s := range statuses {
		if s.Name == "cache" {
			assert.False(t, s.Healthy)
			assert.Contains(t, s.Error, "connection refused")
		}
	}
}

func TestChecker_StoreClosed(t *testing.T) {
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c := NewChecker(Options{Store: db})
	c.RunOnce(context.Background())
	assert.False(t, c.IsHealthy())
}

func TestChecker_DataDirRecovers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	c := NewChecker(Options{DataDir: dir})

	first := c.RunOnce(context.Background())
	require.Len(t, first, 1)
	assert.False(t, first[0].Healthy)

	info, err := os.Stat(dir)
	require.NoError(t, err, "recovery should create the directory")
	assert.True(t, info.IsDir())

	second := c.RunOnce(context.Background())
	assert.True(t, second[0].Healthy)
}

func TestChecker_DataDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c := NewChecker(Options{DataDir: path})
	statuses := c.RunOnce(context.Background())
	assert.False(t, statuses[0].Healthy)
	assert.Contains(t, statuses[0].Error, "not a directory")
}

func TestChecker_Add(t *testing.T) {
	c := NewChecker(Options{})
	c.Add(Check{Name: "custom", CheckFn: func(context.Context) error { return nil }})

	statuses := c.RunOnce(context.Background())
	require.Len(t, statuses, 1)
	assert.Equal(t, "custom", statuses[0].Name)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(Options{Store: newTestDB(t)})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	assert.Len(t, c.Statuses(), 1)
}
