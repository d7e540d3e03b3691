package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "embeddings.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "embeddings.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created at %s: %v", path, err)
	}
	if db.Path() != path {
		t.Errorf("expected path %s, got %s", path, db.Path())
	}
	// 迁移可重复执行
	if err := db.Migrate(); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
}

func TestEmbedding_SaveAndLookup(t *testing.T) {
	db := newTestDB(t)
	mod := time.Unix(1700000000, 123456789)
	vec := []float32{0.5, -1.25, 3.0e-7}

	if _, ok, err := db.LookupEmbedding("/refs/texas.wav", 100, mod); err != nil || ok {
		t.Fatalf("expected miss on empty db, got ok=%v err=%v", ok, err)
	}

	if err := db.SaveEmbedding("/refs/texas.wav", 100, mod, vec); err != nil {
		t.Fatalf("SaveEmbedding failed: %v", err)
	}
	got, ok, err := db.LookupEmbedding("/refs/texas.wav", 100, mod)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != len(vec) {
		t.Fatalf("expected %d values, got %d", len(vec), len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("value %d: expected %v, got %v", i, vec[i], got[i])
		}
	}
}

func TestEmbedding_StaleFingerprint(t *testing.T) {
	db := newTestDB(t)
	mod := time.Unix(1700000000, 0)
	if err := db.SaveEmbedding("/refs/a.wav", 100, mod, []float32{1}); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := db.LookupEmbedding("/refs/a.wav", 101, mod); ok {
		t.Error("size change should invalidate the record")
	}
	if _, ok, _ := db.LookupEmbedding("/refs/a.wav", 100, mod.Add(time.Second)); ok {
		t.Error("mod time change should invalidate the record")
	}
}

func TestEmbedding_Replace(t *testing.T) {
	db := newTestDB(t)
	old := time.Unix(1700000000, 0)
	now := old.Add(time.Hour)

	if err := db.SaveEmbedding("/refs/a.wav", 10, old, []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveEmbedding("/refs/a.wav", 20, now, []float32{3, 4, 5}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	got, ok, err := db.LookupEmbedding("/refs/a.wav", 20, now)
	if err != nil || !ok || len(got) != 3 || got[0] != 3 {
		t.Fatalf("expected replaced vector, got %v ok=%v err=%v", got, ok, err)
	}
}

func TestEmbedding_SaveEmpty(t *testing.T) {
	db := newTestDB(t)
	if err := db.SaveEmbedding("/refs/a.wav", 1, time.Now(), nil); err == nil {
		t.Error("expected error for empty vector")
	}
}
