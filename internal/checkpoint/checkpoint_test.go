package checkpoint

import (
	"testing"
)

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()

	// Unknown rooms start fresh.
	token, err := store.Load("!room:matrix.org")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty cursor, got %q", token)
	}

	if err := store.Save("!room:matrix.org", "s123_456"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, err = store.Load("!room:matrix.org")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "s123_456" {
		t.Errorf("cursor = %q, want s123_456", token)
	}

	// Saving again overwrites.
	if err := store.Save("!room:matrix.org", "s789_000"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, _ = store.Load("!room:matrix.org")
	if token != "s789_000" {
		t.Errorf("cursor = %q, want s789_000", token)
	}

	// Rooms do not share cursors.
	token, _ = store.Load("!other:matrix.org")
	if token != "" {
		t.Errorf("unrelated room cursor = %q, want empty", token)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	testStoreRoundTrip(t, store)
}

func TestFileStorePathSeparator(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save("../../escape", "tok"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, err := store.Load("../../escape")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "tok" {
		t.Errorf("cursor = %q, want tok", token)
	}
}

func TestMemStore(t *testing.T) {
	testStoreRoundTrip(t, NewMemStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteMemory: %v", err)
	}
	defer store.Close()
	testStoreRoundTrip(t, store)
}
