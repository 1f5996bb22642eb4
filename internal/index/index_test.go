package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// fakeEmbedder returns a fixed vector and counts calls.
type fakeEmbedder struct {
	calls atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	return []float32{1, 0, 0}, nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const indexableGo = `package pay

func Charge(amount int) error {
	if amount <= 0 {
		return errInvalidAmount
	}
	return gateway.Charge(amount)
}
`

func newTestIndexer(t *testing.T) (*Indexer, *fakeEmbedder) {
	t.Helper()
	emb := &fakeEmbedder{}
	ix := &Indexer{
		Store:       openTestStore(t),
		Embedder:    emb,
		Repo:        "testrepo",
		IgnoreGlobs: []string{"**/ignored/**"},
	}
	return ix, emb
}

func TestIndexWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pay/charge.go", indexableGo)
	writeFile(t, root, "README.md", "# Guide\n\nAlways validate amounts before calling the gateway layer.\n")
	writeFile(t, root, "ignored/skip.go", indexableGo)
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = {}\n")
	writeFile(t, root, ".git/config", "[core]\n")

	ix, emb := newTestIndexer(t)
	stats, err := ix.Index(context.Background(), root)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if stats.Files != 2 {
		t.Errorf("Files = %d, want 2", stats.Files)
	}
	if stats.Units == 0 {
		t.Error("expected some units indexed")
	}
	if emb.calls.Load() == 0 {
		t.Error("embedder never called")
	}

	paths, err := ix.Store.Paths("testrepo")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		if p == "ignored/skip.go" || p == "node_modules/dep/index.js" {
			t.Errorf("indexed excluded path %s", p)
		}
	}
}

func TestIndexRebuildIsNoOp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pay/charge.go", indexableGo)

	ix, emb := newTestIndexer(t)
	first, err := ix.Index(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := emb.calls.Load()

	second, err := ix.Index(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if second.Units != 0 {
		t.Errorf("rebuild indexed %d new units, want 0", second.Units)
	}
	if second.Skipped != first.Units {
		t.Errorf("rebuild skipped %d, want %d", second.Skipped, first.Units)
	}
	if emb.calls.Load() != callsAfterFirst {
		t.Error("rebuild re-embedded unchanged content")
	}

	n, _ := ix.Store.Count("testrepo")
	if n != first.Units {
		t.Errorf("index grew on rebuild: %d units, want %d", n, first.Units)
	}
}

func TestUpdateRemovesDeletedPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pay/charge.go", indexableGo)

	ix, _ := newTestIndexer(t)
	if _, err := ix.Index(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "pay/charge.go")); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Update(context.Background(), root, []string{"pay/charge.go"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if n, _ := ix.Store.Count("testrepo"); n != 0 {
		t.Errorf("deleted path still has %d units", n)
	}
}
