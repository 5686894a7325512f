package file

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mirageapi/mirage"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, dir
}

func TestPersistenceAcrossReopen(t *testing.T) {
	s, dir := testStore(t)
	sess, err := s.Session("tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	res := sess.Resource("members")
	if _, err := res.Insert(mirage.Record{"name": "Alice"}); err != nil {
		t.Fatal(err)
	}
	if _, err := res.Insert(mirage.Record{"name": "Bob"}); err != nil {
		t.Fatal(err)
	}
	if ok, err := res.Delete(2); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	// A fresh Store over the same directory sees the data and, critically,
	// continues the id counter instead of reusing 2.
	s2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	sess2, err := s2.Session("tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	res2 := sess2.Resource("members")

	got, ok, err := res2.Get(1)
	if err != nil || !ok || got["name"] != "Alice" {
		t.Fatalf("get after reopen: %v %v %v", got, ok, err)
	}
	rec, err := res2.Insert(mirage.Record{"name": "Carol"})
	if err != nil {
		t.Fatal(err)
	}
	if rec["id"] != int64(3) {
		t.Fatalf("id after reopen = %v, want 3", rec["id"])
	}
}

func TestFileLayout(t *testing.T) {
	s, dir := testStore(t)
	sess, err := s.Session("t1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Resource("books").Insert(mirage.Record{"title": "Go"}); err != nil {
		t.Fatal(err)
	}

	dataPath := filepath.Join(dir, "t1", "books.json")
	raw, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatalf("data file: %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("data file is not a JSON array: %v", err)
	}
	if len(items) != 1 || items[0]["title"] != "Go" {
		t.Fatalf("items = %v", items)
	}

	for _, p := range []string{
		filepath.Join(dir, "t1", ".schemas", "books.json"),
		filepath.Join(dir, "t1", ".schemas", "books.meta.json"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}

func TestIDsSurviveViaMetaFile(t *testing.T) {
	s, dir := testStore(t)
	sess, _ := s.Session("t1")
	res := sess.Resource("x")
	if _, err := res.Insert(mirage.Record{"id": 41}); err != nil {
		t.Fatal(err)
	}
	rec, err := res.Insert(mirage.Record{})
	if err != nil {
		t.Fatal(err)
	}
	if rec["id"] != int64(42) {
		t.Fatalf("id = %v, want 42", rec["id"])
	}

	raw, err := os.ReadFile(filepath.Join(dir, "t1", ".schemas", "x.meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	var meta struct {
		AutoID int64 `json:"auto_id"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.AutoID != 43 {
		t.Fatalf("auto_id = %d, want 43", meta.AutoID)
	}
}

func TestInvalidResourceNameFails(t *testing.T) {
	s, _ := testStore(t)
	sess, _ := s.Session("t1")
	res := sess.Resource("../escape")
	if _, err := res.Insert(mirage.Record{"x": 1}); err == nil {
		t.Fatal("path-traversal resource name accepted")
	}
}

func TestCorruptDataFileDegradesToEmpty(t *testing.T) {
	s, dir := testStore(t)
	sess, _ := s.Session("t1")
	res := sess.Resource("broken")
	if _, err := res.Insert(mirage.Record{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "t1", "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, total, err := res.List(mirage.ListOptions{})
	if err != nil {
		t.Fatalf("list over corrupt file: %v", err)
	}
	if total != 0 {
		t.Fatalf("total = %d, want 0", total)
	}
}
