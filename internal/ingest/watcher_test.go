package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/picshelf/internal/storage"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewImageRegistered(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()

	var mu sync.Mutex
	var added []string
	s := NewScanner(db, storage.NewFS(), testLogger(), WithOnAdded(func(p string) {
		mu.Lock()
		added = append(added, p)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx, []string{dir}, storage.DefaultExtensions)

	time.Sleep(100 * time.Millisecond)
	touch(t, dir, "new.jpg", "readme.md")

	want := filepath.Join(dir, "new.jpg")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.Get(context.Background(), want)
		return err == nil
	}, "new image not registered by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(added) == 1 && added[0] == want
	}, "expected exactly one added callback")

	n, _ := db.Count(context.Background())
	if n != 1 {
		t.Errorf("record count = %d, want 1", n)
	}
}

func TestWatcher_RemovalKeepsRecord(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	touch(t, dir, "keep.png")
	s := NewScanner(db, storage.NewFS(), testLogger())
	s.Scan(context.Background(), []string{dir}, storage.DefaultExtensions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx, []string{dir}, storage.DefaultExtensions)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "keep.png"))
	time.Sleep(300 * time.Millisecond)

	if _, err := db.Get(context.Background(), filepath.Join(dir, "keep.png")); err != nil {
		t.Errorf("record removed after file deletion: %v", err)
	}
}

func TestWatcher_RenameRegistersNewName(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	touch(t, dir, "old.jpg")
	s := NewScanner(db, storage.NewFS(), testLogger())
	s.Scan(context.Background(), []string{dir}, storage.DefaultExtensions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx, []string{dir}, storage.DefaultExtensions)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old.jpg"), filepath.Join(dir, "renamed.jpg"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.Get(context.Background(), filepath.Join(dir, "renamed.jpg"))
		return err == nil
	}, "renamed image not registered")
}
