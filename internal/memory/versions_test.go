package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"testing"
)

func newVersionStore(t *testing.T) *VersionStore {
	t.Helper()
	s, err := NewVersionStore(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("NewVersionStore: %v", err)
	}
	return s
}

func TestHashBlocksCanonicalForm(t *testing.T) {
	blocks := map[string]string{"persona": "AX", "human": "B"}
	sum := sha256.Sum256([]byte("human:B\npersona:AX"))
	want := hex.EncodeToString(sum[:])
	if got := HashBlocks(blocks); got != want {
		t.Errorf("HashBlocks = %s, want %s", got, want)
	}
}

func TestHashBlocksIsOrderIndependent(t *testing.T) {
	a := HashBlocks(map[string]string{"x": "1", "y": "2"})
	b := HashBlocks(map[string]string{"y": "2", "x": "1"})
	if a != b {
		t.Errorf("hash depends on map order: %s vs %s", a, b)
	}
	c := HashBlocks(map[string]string{"x": "1", "y": "changed"})
	if a == c {
		t.Error("different content hashed equal")
	}
}

func TestCommitIsIdempotentAgainstHead(t *testing.T) {
	s := newVersionStore(t)
	blocks := map[string]string{"persona": "p"}

	v1, err := s.Commit(blocks, "first")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := s.Commit(blocks, "same content again")
	if err != nil {
		t.Fatal(err)
	}
	if v1.ID != v2.ID || s.Len() != 1 {
		t.Errorf("identical commit created a new version: %d versions", s.Len())
	}
}

func TestCommitLinksParent(t *testing.T) {
	s := newVersionStore(t)
	v1, _ := s.Commit(map[string]string{"a": "1"}, "one")
	v2, _ := s.Commit(map[string]string{"a": "2"}, "two")
	if v2.ParentID != v1.ID {
		t.Errorf("parent = %s, want %s", v2.ParentID, v1.ID)
	}
	if head := s.Head(); head == nil || head.ID != v2.ID {
		t.Errorf("head = %+v", head)
	}
}

func TestVersionsSurviveReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewVersionStore(dir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	v1, _ := s.Commit(map[string]string{"a": "1"}, "one")
	s.Commit(map[string]string{"a": "2"}, "two")

	reloaded, err := NewVersionStore(dir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded %d versions", reloaded.Len())
	}
	found, err := reloaded.Find(v1.ID[:8])
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Blocks["a"] != "1" {
		t.Errorf("blocks = %+v", found.Blocks)
	}
}

func TestRingBufferEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewVersionStore(dir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	var first *Version
	for i := 0; i <= MaxVersions; i++ {
		v, err := s.Commit(map[string]string{"n": fmt.Sprintf("%d", i)}, "step")
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = v
		}
	}
	if s.Len() != MaxVersions {
		t.Errorf("len = %d, want %d", s.Len(), MaxVersions)
	}
	if _, err := s.Find(first.ID[:8]); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("oldest version still present: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxVersions {
		t.Errorf("%d files on disk, want %d", len(entries), MaxVersions)
	}
}

func TestDiff(t *testing.T) {
	s := newVersionStore(t)
	v1, _ := s.Commit(map[string]string{"keep": "same", "change": "old", "drop": "x"}, "one")
	v2, _ := s.Commit(map[string]string{"keep": "same", "change": "new", "add": "y"}, "two")

	entries, err := s.Diff(v1.ID[:8], v2.ID[:8])
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	changes := map[string]DiffChange{}
	for _, e := range entries {
		changes[e.Label] = e.Change
	}
	if changes["change"] != DiffModified {
		t.Errorf("change = %s", changes["change"])
	}
	if changes["drop"] != DiffRemoved {
		t.Errorf("drop = %s", changes["drop"])
	}
	if changes["add"] != DiffAdded {
		t.Errorf("add = %s", changes["add"])
	}
	if _, ok := changes["keep"]; ok {
		t.Error("unchanged block reported")
	}
}

func TestRollbackUnknownPrefix(t *testing.T) {
	s := newVersionStore(t)
	if _, err := s.Rollback("deadbeef"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestLogNewestFirst(t *testing.T) {
	s := newVersionStore(t)
	s.Commit(map[string]string{"a": "1"}, "one")
	s.Commit(map[string]string{"a": "2"}, "two")
	s.Commit(map[string]string{"a": "3"}, "three")

	log := s.Log(2)
	if len(log) != 2 {
		t.Fatalf("log = %d entries", len(log))
	}
	if log[0].Message != "three" || log[1].Message != "two" {
		t.Errorf("order = %s, %s", log[0].Message, log[1].Message)
	}
}
