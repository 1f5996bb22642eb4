package index

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// Unit is an indexed code or doc fragment with its embedding. Units are
// immutable once written; re-indexing unchanged content is a no-op via
// the content hash, and changed content replaces the row wholesale.
type Unit struct {
	ID        string
	Repo      string
	Path      string
	Kind      string
	Name      string
	Language  string
	StartLine int
	EndLine   int
	Content   string
	Hash      string
	Vector    []float32
}

// Match is a unit returned from a similarity query.
type Match struct {
	Unit
	Score float64
}

// Store persists units in sqlite. Reads may run concurrently; writes
// are serialized by mu so a reader never observes a half-written unit.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS units (
	id TEXT PRIMARY KEY,
	repo TEXT NOT NULL,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	start_line INTEGER NOT NULL DEFAULT 0,
	end_line INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	vector BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS units_repo ON units(repo);
CREATE INDEX IF NOT EXISTS units_repo_path ON units(repo, path);
`

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Has reports whether a unit with this id and content hash exists.
func (s *Store) Has(id, hash string) (bool, error) {
	var stored string
	err := s.db.QueryRow(`SELECT content_hash FROM units WHERE id = ?`, id).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == hash, nil
}

// Upsert writes a unit, replacing any prior version of the same id.
func (s *Store) Upsert(u Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO units (id, repo, path, kind, name, language, start_line, end_line, content, content_hash, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, name=excluded.name, language=excluded.language,
			start_line=excluded.start_line, end_line=excluded.end_line,
			content=excluded.content, content_hash=excluded.content_hash, vector=excluded.vector`,
		u.ID, u.Repo, u.Path, u.Kind, u.Name, u.Language,
		u.StartLine, u.EndLine, u.Content, u.Hash, encodeVector(u.Vector))
	return err
}

// DeletePath removes all units for a path.
func (s *Store) DeletePath(repo, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM units WHERE repo = ? AND path = ?`, repo, path)
	return err
}

// Count returns the number of units stored for a repo.
func (s *Store) Count(repo string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM units WHERE repo = ?`, repo).Scan(&n)
	return n, err
}

// Paths returns the distinct indexed paths for a repo.
func (s *Store) Paths(repo string) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT path FROM units WHERE repo = ? ORDER BY path`, repo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Query runs a brute-force cosine similarity scan and returns the topK
// matches, highest score first. kinds, when non-empty, restricts the
// candidate set.
func (s *Store) Query(repo string, vec []float32, topK int, kinds ...string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := `SELECT id, repo, path, kind, name, language, start_line, end_line, content, content_hash, vector
		FROM units WHERE repo = ?`
	args := []any{repo}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + repeat(",?", len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, k)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var u Unit
		var blob []byte
		if err := rows.Scan(&u.ID, &u.Repo, &u.Path, &u.Kind, &u.Name, &u.Language,
			&u.StartLine, &u.EndLine, &u.Content, &u.Hash, &blob); err != nil {
			return nil, err
		}
		u.Vector = decodeVector(blob)
		score := cosine(vec, u.Vector)
		matches = append(matches, Match{Unit: u, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// SearchContent returns units whose content contains needle. Used by
// the related-file static pass, not by similarity retrieval.
func (s *Store) SearchContent(repo, needle string, limit int) ([]Unit, error) {
	rows, err := s.db.Query(`
		SELECT id, repo, path, kind, name, language, start_line, end_line, content, content_hash
		FROM units WHERE repo = ? AND content LIKE ? LIMIT ?`,
		repo, "%"+needle+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Repo, &u.Path, &u.Kind, &u.Name, &u.Language,
			&u.StartLine, &u.EndLine, &u.Content, &u.Hash); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosine returns the cosine similarity of two vectors, clamped to
// [0,1]. Mismatched dimensions score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
