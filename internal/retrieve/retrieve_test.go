package retrieve

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/model"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeStore struct {
	matches  []index.Match
	units    []index.Unit
	paths    []string
	queryErr error
}

func (f *fakeStore) Query(repo string, vec []float32, topK int, kinds ...string) ([]index.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []index.Match
	for _, m := range f.matches {
		if len(kinds) == 0 || want[m.Kind] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchContent(repo, needle string, limit int) ([]index.Unit, error) {
	return f.units, nil
}

func (f *fakeStore) Paths(repo string) ([]string, error) {
	return f.paths, nil
}

const changeDiff = `diff --git a/billing/charge.go b/billing/charge.go
index abc1234..def5678 100644
--- a/billing/charge.go
+++ b/billing/charge.go
@@ -10,4 +10,8 @@ func existing() {}
 func Charge(amount int) error {
+	if amount <= 0 {
+		return fmt.Errorf("invalid amount %d: must be positive", amount)
+	}
+	return gateway.Submit(amount)
 }
 
 
`

func testContext(t *testing.T) *collect.Context {
	t.Helper()
	ds, err := diff.Parse(changeDiff)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return &collect.Context{
		Meta: model.PRMetadata{Title: "validate charge amounts"},
		Diff: ds,
	}
}

func match(id, path, kind string, score float64) index.Match {
	return index.Match{
		Unit:  index.Unit{ID: id, Path: path, Kind: kind, Name: id, Content: "body of " + id},
		Score: score,
	}
}

func newRetriever(store VectorStore, emb *fakeEmbedder) *Retriever {
	return &Retriever{
		Store:     store,
		Embedder:  emb,
		Repo:      "testrepo",
		TopK:      5,
		Threshold: 0.7,
		Workers:   2,
		Enabled:   true,
	}
}

func TestRetrieveDisabled(t *testing.T) {
	r := newRetriever(&fakeStore{}, &fakeEmbedder{})
	r.Enabled = false

	rk := r.Retrieve(context.Background(), testContext(t))
	if rk == nil {
		t.Fatal("Retrieve must never return nil")
	}
	if !rk.IsEmpty() {
		t.Error("disabled retrieval should be empty")
	}
}

func TestRetrieveNilBackends(t *testing.T) {
	r := &Retriever{Enabled: true}
	rk := r.Retrieve(context.Background(), testContext(t))
	if rk == nil || !rk.IsEmpty() {
		t.Error("missing backends should degrade to empty knowledge")
	}
}

func TestRetrieveEmbedderFailureDegrades(t *testing.T) {
	r := newRetriever(&fakeStore{}, &fakeEmbedder{err: fmt.Errorf("backend down")})
	rk := r.Retrieve(context.Background(), testContext(t))
	if rk == nil {
		t.Fatal("Retrieve must never return nil")
	}
	if len(rk.Patterns) != 0 {
		t.Error("embedding failure should yield no patterns")
	}
}

func TestRetrievePatterns(t *testing.T) {
	store := &fakeStore{matches: []index.Match{
		match("high", "billing/refund.go", index.KindFunction, 0.92),
		match("low", "billing/old.go", index.KindFunction, 0.5),
		match("self", "billing/charge.go", index.KindFunction, 0.95),
		match("arch", "billing/gateway.go", index.KindClass, 0.85),
	}}
	r := newRetriever(store, &fakeEmbedder{})

	rk := r.Retrieve(context.Background(), testContext(t))

	for _, p := range rk.Patterns {
		if p.FilePath == "billing/old.go" {
			t.Error("below-threshold match returned")
		}
		if p.FilePath == "billing/charge.go" {
			t.Error("changed file matched itself")
		}
	}
	if len(rk.Patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d: %+v", len(rk.Patterns), rk.Patterns)
	}
	if rk.Patterns[0].Score < rk.Patterns[1].Score {
		t.Error("patterns not ordered by score")
	}
	if len(rk.ArchPatterns) != 1 {
		t.Errorf("expected 1 architectural pattern, got %v", rk.ArchPatterns)
	}
}

const twoFileDiff = `diff --git a/billing/charge.go b/billing/charge.go
index abc1234..def5678 100644
--- a/billing/charge.go
+++ b/billing/charge.go
@@ -10,4 +10,8 @@ func existing() {}
 func Charge(amount int) error {
+	if amount <= 0 {
+		return fmt.Errorf("invalid amount %d: must be positive", amount)
+	}
+	return gateway.Submit(amount)
 }
 
 
diff --git a/billing/refund.go b/billing/refund.go
index 1234abc..5678def 100644
--- a/billing/refund.go
+++ b/billing/refund.go
@@ -20,4 +20,8 @@ func helper() {}
 func Refund(amount int) error {
+	if amount <= 0 {
+		return fmt.Errorf("invalid refund %d: must be positive", amount)
+	}
+	return gateway.Reverse(amount)
 }
 
 
`

func TestRetrieveIdempotentOnUnchangedIndex(t *testing.T) {
	ds, err := diff.Parse(twoFileDiff)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	c := &collect.Context{
		Meta: model.PRMetadata{Title: "validate amounts"},
		Diff: ds,
	}

	// Equal scores force the unit-id tie-break; two changed files force
	// concurrent queries feeding the dedupe map.
	store := &fakeStore{matches: []index.Match{
		match("beta", "billing/b.go", index.KindFunction, 0.9),
		match("alpha", "billing/a.go", index.KindFunction, 0.9),
		match("gamma", "billing/c.go", index.KindFunction, 0.8),
	}}
	r := newRetriever(store, &fakeEmbedder{})

	first := r.Retrieve(context.Background(), c)
	if len(first.Patterns) != 3 {
		t.Fatalf("expected 3 patterns, got %d: %+v", len(first.Patterns), first.Patterns)
	}
	if first.Patterns[0].FilePath != "billing/a.go" || first.Patterns[1].FilePath != "billing/b.go" {
		t.Errorf("equal scores should order by unit id: %+v", first.Patterns)
	}

	for i := 0; i < 5; i++ {
		second := r.Retrieve(context.Background(), c)
		if !reflect.DeepEqual(first.Patterns, second.Patterns) {
			t.Fatalf("iteration %d: patterns changed across identical queries:\nfirst:  %+v\nsecond: %+v",
				i, first.Patterns, second.Patterns)
		}
	}
}

func TestRetrieveQueryFailureDegrades(t *testing.T) {
	store := &fakeStore{queryErr: fmt.Errorf("db locked")}
	r := newRetriever(store, &fakeEmbedder{})

	rk := r.Retrieve(context.Background(), testContext(t))
	if rk == nil {
		t.Fatal("Retrieve must never return nil")
	}
	if len(rk.Patterns) != 0 {
		t.Error("query failure should yield no patterns")
	}
}

func TestBestPracticesRelaxedCutoff(t *testing.T) {
	store := &fakeStore{matches: []index.Match{
		{Unit: index.Unit{ID: "d1", Path: "docs/guide.md", Kind: index.KindDoc, Content: "validate inputs"}, Score: 0.65},
		{Unit: index.Unit{ID: "d2", Path: "docs/other.md", Kind: index.KindDoc, Content: "stale"}, Score: 0.5},
	}}
	r := newRetriever(store, &fakeEmbedder{})

	rk := r.Retrieve(context.Background(), testContext(t))

	// Doc cutoff is threshold-0.1: 0.65 passes, 0.5 does not.
	if len(rk.BestPractices) != 1 {
		t.Fatalf("expected 1 best practice, got %d", len(rk.BestPractices))
	}
	if rk.BestPractices[0].Source != "docs/guide.md" {
		t.Errorf("source = %q", rk.BestPractices[0].Source)
	}
}

func TestRelatedFilesTestConvention(t *testing.T) {
	store := &fakeStore{paths: []string{"billing/charge_test.go", "billing/refund.go"}}
	r := newRetriever(store, &fakeEmbedder{})

	rk := r.Retrieve(context.Background(), testContext(t))

	found := false
	for _, rf := range rk.RelatedFiles {
		if rf.Path == "billing/charge_test.go" && rf.Relationship == "test_file" {
			found = true
		}
	}
	if !found {
		t.Errorf("test file convention not detected: %+v", rk.RelatedFiles)
	}
}
