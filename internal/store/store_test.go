package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	want := payload{Name: "valet", Count: 3}
	if err := WriteJSON(path, want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got payload
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	var got payload
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &got)
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestReadJSONCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	var got payload
	err := ReadJSON(path, &got)
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("err = %v", err)
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	for i := 0; i < 5; i++ {
		if err := WriteFileAtomic(path, []byte("generation")); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "data.bin" {
		t.Errorf("dir entries = %v", entries)
	}
}

func TestWriteFileAtomicOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	WriteFileAtomic(path, []byte("old old old"))
	if err := WriteFileAtomic(path, []byte("new")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("file = %q", data)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaverCoalescesBursts(t *testing.T) {
	var saves atomic.Int32
	done := make(chan struct{}, 1)
	s := NewSaver(20*time.Millisecond, func() error {
		saves.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}, testLogger())

	for i := 0; i < 10; i++ {
		s.Schedule()
	}
	if !s.Dirty() {
		t.Error("not dirty after Schedule")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("save never fired")
	}
	if got := saves.Load(); got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}
	if s.Dirty() {
		t.Error("still dirty after save")
	}
}

func TestSaverFlushWritesPendingImmediately(t *testing.T) {
	var saves atomic.Int32
	s := NewSaver(time.Hour, func() error {
		saves.Add(1)
		return nil
	}, testLogger())

	s.Schedule()
	s.Flush()
	if got := saves.Load(); got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}

	// Nothing pending, flush is a no-op.
	s.Flush()
	if got := saves.Load(); got != 1 {
		t.Errorf("saves after idle flush = %d, want 1", got)
	}
}

func TestSaverZeroWindowSavesInline(t *testing.T) {
	var saves atomic.Int32
	s := NewSaver(0, func() error {
		saves.Add(1)
		return nil
	}, testLogger())

	s.Schedule()
	s.Schedule()
	if got := saves.Load(); got != 2 {
		t.Errorf("saves = %d, want 2", got)
	}
}

func TestSaverStopPreventsFurtherScheduling(t *testing.T) {
	var mu sync.Mutex
	saves := 0
	s := NewSaver(time.Hour, func() error {
		mu.Lock()
		saves++
		mu.Unlock()
		return nil
	}, testLogger())

	s.Schedule()
	s.Stop()
	s.Schedule()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if saves != 1 {
		t.Errorf("saves = %d, want 1 (the Stop flush)", saves)
	}
}

func TestStateDirEnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom-state")
	t.Setenv(EnvStateDir, dir)

	got, err := StateDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("StateDir = %q, want %q", got, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("state dir not created: %v", err)
	}
}
