package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mirageapi/mirage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "mirage.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := testStore(t)
	sess, err := s.Session("tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	res := sess.Resource("members")

	rec, err := res.Insert(mirage.Record{"name": "Alice", "age": int64(30)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rec["id"] != int64(1) {
		t.Fatalf("id = %v", rec["id"])
	}

	got, ok, err := res.Get(1)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	// Integer fields must come back as int64, not float64, after the JSON
	// round trip through the state column.
	if got["age"] != int64(30) {
		t.Fatalf("age = %#v, want int64", got["age"])
	}
}

func TestCounterSurvivesRows(t *testing.T) {
	s := testStore(t)
	sess, _ := s.Session("t1")
	res := sess.Resource("x")
	if _, err := res.Insert(mirage.Record{"id": 7}); err != nil {
		t.Fatal(err)
	}
	if ok, err := res.Delete(7); err != nil || !ok {
		t.Fatal("delete failed")
	}
	rec, err := res.Insert(mirage.Record{})
	if err != nil {
		t.Fatal(err)
	}
	if rec["id"] != int64(8) {
		t.Fatalf("id = %v, want 8", rec["id"])
	}
}

func TestTenantIsolation(t *testing.T) {
	s := testStore(t)
	sessA, _ := s.Session("tenant-a")
	sessB, _ := s.Session("tenant-b")
	if _, err := sessA.Resource("m").Insert(mirage.Record{"k": "v"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := sessB.Resource("m").Get(1); ok {
		t.Fatal("cross-tenant read succeeded")
	}
}

func TestSearchAndList(t *testing.T) {
	s := testStore(t)
	sess, _ := s.Session("t1")
	res := sess.Resource("members")
	for _, name := range []string{"E", "C", "A", "D", "B"} {
		if _, err := res.Insert(mirage.Record{"name": name}); err != nil {
			t.Fatal(err)
		}
	}

	limit := 2
	page, total, err := res.List(mirage.ListOptions{Limit: &limit, Offset: 2, Sort: "name"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(page) != 2 || page[0]["name"] != "C" || page[1]["name"] != "D" {
		t.Fatalf("page = %v, total = %d", page, total)
	}

	hits, err := res.Search(map[string]any{"name__icontains": "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0]["name"] != "C" {
		t.Fatalf("hits = %v", hits)
	}
}
