package index

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func unit(id, path, kind string, vec []float32) Unit {
	return Unit{
		ID:      id,
		Repo:    "testrepo",
		Path:    path,
		Kind:    kind,
		Name:    id,
		Content: "content of " + id,
		Hash:    "hash-" + id,
		Vector:  vec,
	}
}

func TestUpsertAndHas(t *testing.T) {
	s := openTestStore(t)

	u := unit("a", "a.go", KindFunction, []float32{1, 0})
	if err := s.Upsert(u); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	same, err := s.Has("a", "hash-a")
	if err != nil || !same {
		t.Errorf("Has(same hash) = %v, %v", same, err)
	}
	same, err = s.Has("a", "other-hash")
	if err != nil || same {
		t.Errorf("Has(other hash) = %v, %v", same, err)
	}
	same, err = s.Has("missing", "hash")
	if err != nil || same {
		t.Errorf("Has(missing) = %v, %v", same, err)
	}

	// Upsert replaces.
	u.Hash = "hash-a2"
	if err := s.Upsert(u); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	if n, _ := s.Count("testrepo"); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestQueryRanksByCosine(t *testing.T) {
	s := openTestStore(t)

	for _, u := range []Unit{
		unit("exact", "a.go", KindFunction, []float32{1, 0}),
		unit("close", "b.go", KindFunction, []float32{0.9, 0.1}),
		unit("far", "c.go", KindFunction, []float32{0, 1}),
	} {
		if err := s.Upsert(u); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := s.Query("testrepo", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "exact" || matches[1].ID != "close" {
		t.Errorf("order wrong: %s, %s", matches[0].ID, matches[1].ID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %v, %v", matches[0].Score, matches[1].Score)
	}
}

func TestQueryKindFilter(t *testing.T) {
	s := openTestStore(t)

	for _, u := range []Unit{
		unit("fn", "a.go", KindFunction, []float32{1, 0}),
		unit("doc", "guide.md", KindDoc, []float32{1, 0}),
	} {
		if err := s.Upsert(u); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := s.Query("testrepo", []float32{1, 0}, 10, KindDoc)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "doc" {
		t.Errorf("kind filter failed: %+v", matches)
	}
}

func TestDeletePathAndPaths(t *testing.T) {
	s := openTestStore(t)

	for _, u := range []Unit{
		unit("a1", "a.go", KindFunction, []float32{1}),
		unit("a2", "a.go", KindFunction, []float32{1}),
		unit("b1", "b.go", KindFunction, []float32{1}),
	} {
		if err := s.Upsert(u); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := s.Paths("testrepo")
	if err != nil || len(paths) != 2 {
		t.Fatalf("Paths = %v, %v", paths, err)
	}

	if err := s.DeletePath("testrepo", "a.go"); err != nil {
		t.Fatalf("DeletePath: %v", err)
	}
	if n, _ := s.Count("testrepo"); n != 1 {
		t.Errorf("Count after delete = %d, want 1", n)
	}
}

func TestSearchContent(t *testing.T) {
	s := openTestStore(t)

	u := unit("a", "a.go", KindFunction, []float32{1})
	u.Content = "func ProcessPayment(amount int) error {"
	if err := s.Upsert(u); err != nil {
		t.Fatal(err)
	}

	units, err := s.SearchContent("testrepo", "ProcessPayment(", 5)
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if len(units) != 1 || units[0].Path != "a.go" {
		t.Errorf("SearchContent = %+v", units)
	}

	units, _ = s.SearchContent("testrepo", "NoSuchSymbol", 5)
	if len(units) != 0 {
		t.Errorf("expected no matches, got %d", len(units))
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors score %v", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors score %v", got)
	}
	if got := cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched dims score %v", got)
	}
	if got := cosine([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("negative similarity should clamp to 0, got %v", got)
	}
}
