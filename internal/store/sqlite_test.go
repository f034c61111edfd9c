package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteKV_MultiOperations(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	kv, err := NewSQLiteKV(ctx, db, "general_store")
	if err != nil {
		t.Fatalf("NewSQLiteKV returned error: %v", err)
	}

	if err := kv.MultiSet(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("MultiSet returned error: %v", err)
	}
	if err := kv.Set(ctx, "a", "3"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	values, err := kv.MultiGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MultiGet returned error: %v", err)
	}
	if len(values) != 2 || values["a"] != "3" || values["b"] != "2" {
		t.Fatalf("unexpected values: %v", values)
	}

	if err := kv.MultiDelete(ctx, []string{"a"}); err != nil {
		t.Fatalf("MultiDelete returned error: %v", err)
	}
	if _, found, err := kv.Get(ctx, "a"); err != nil || found {
		t.Fatalf("expected a to be deleted, found=%v err=%v", found, err)
	}
}

func TestNewSQLiteKV_RejectsUnsafeTableName(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := NewSQLiteKV(context.Background(), db, "kv; DROP TABLE x"); err == nil {
		t.Fatal("expected invalid table name error")
	}
}
