package session

import (
	"errors"
	"testing"
	"time"

	"github.com/valetd/valet/internal/provider"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	jsonStore, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	sqliteStore, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		jsonStore.Close()
		sqliteStore.Close()
	})
	return map[string]Store{"json": jsonStore, "sqlite": sqliteStore}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sess := New("valet")
			sess.Append(
				provider.Message{Role: provider.RoleUser, Content: "hello"},
				provider.Message{Role: provider.RoleAssistant, Content: "hi there"},
			)
			if err := st.Save(sess); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := st.Load(sess.ID)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Agent != "valet" || len(got.Messages) != 2 {
				t.Fatalf("loaded = %+v", got)
			}
			if got.Messages[1].Content != "hi there" {
				t.Errorf("message = %+v", got.Messages[1])
			}
		})
	}
}

func TestStoreSaveIsUpsert(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sess := New("valet")
			if err := st.Save(sess); err != nil {
				t.Fatalf("Save: %v", err)
			}
			sess.Append(provider.Message{Role: provider.RoleUser, Content: "more"})
			if err := st.Save(sess); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			got, err := st.Load(sess.ID)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got.Messages) != 1 {
				t.Errorf("messages = %d, want 1", len(got.Messages))
			}
		})
	}
}

func TestStoreListOrdering(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			older := New("valet")
			older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
			newer := New("valet")
			newer.Append(provider.Message{Role: provider.RoleUser, Content: "x"})
			if err := st.Save(older); err != nil {
				t.Fatal(err)
			}
			if err := st.Save(newer); err != nil {
				t.Fatal(err)
			}

			list, err := st.List()
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("list = %+v", list)
			}
			if list[0].ID != newer.ID {
				t.Errorf("first = %s, want newest %s", list[0].ID, newer.ID)
			}
			if list[0].Messages != 1 || list[1].Messages != 0 {
				t.Errorf("message counts = %d, %d", list[0].Messages, list[1].Messages)
			}
		})
	}
}

func TestStoreDeleteAndNotFound(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sess := New("valet")
			if err := st.Save(sess); err != nil {
				t.Fatal(err)
			}
			if err := st.Delete(sess.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := st.Load(sess.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load after delete: %v", err)
			}
			if err := st.Delete(sess.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete: %v", err)
			}
			if _, err := st.Load("nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load unknown: %v", err)
			}
		})
	}
}
