package harness

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, WatchConfig{
			Dir:      dir,
			Debounce: 50 * time.Millisecond,
			OnChange: func(ctx context.Context, changed []string) error {
				changes <- changed
				return nil
			},
		})
	}()

	// Let the watcher register the directory before writing.
	time.Sleep(200 * time.Millisecond)
	for _, name := range []string{"a.xml", "b.xml", "a.xml.swp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("<a/>"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	select {
	case changed := <-changes:
		if !slices.Equal(changed, []string{"a.xml", "b.xml"}) {
			t.Errorf("changed = %v, want [a.xml b.xml]", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestWatchRequiresCallback(t *testing.T) {
	if err := Watch(context.Background(), WatchConfig{Dir: t.TempDir()}); err == nil {
		t.Error("Watch() without OnChange succeeded")
	}
}

func TestWatchIgnores(t *testing.T) {
	tests := []struct {
		rel  string
		want bool
	}{
		{"data/books.xml", false},
		{"styles/books.tpl", false},
		{"books.xml.swp", true},
		{"data/.books.xml.swo", true},
		{"styles/books.tpl~", true},
		{".DS_Store", true},
		{"data/.DS_Store", true},
		{".git/index", true},
		{filepath.Join("sub", ".git", "HEAD"), true},
	}
	for _, tt := range tests {
		if got := ignored(tt.rel); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
