package api

import (
	"errors"
	"net/http"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/pipeline"
	"github.com/sprite-ai/ragrev/internal/review"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Review ---

type reviewRequest struct {
	collect.Payload
	PRKey string `json:"pr_key,omitempty"`
}

type vetoResponse struct {
	Vetoed bool   `json:"vetoed"`
	Reason string `json:"reason"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Diff == "" {
		writeError(w, http.StatusBadRequest, "diff is required")
		return
	}
	if req.RepoDir == "" {
		req.RepoDir = s.repoDir
	}

	result, err := s.pipe.Run(r.Context(), req.Payload, req.PRKey)
	if err != nil {
		var veto *pipeline.VetoError
		if errors.As(err, &veto) {
			writeJSON(w, http.StatusOK, vetoResponse{Vetoed: true, Reason: veto.Reason})
			return
		}
		var malformed *diff.MalformedDiffError
		if errors.As(err, &malformed) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var synth *review.SynthesisError
		if errors.As(err, &synth) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Collect ---

type collectResponse struct {
	Files     int      `json:"files"`
	Added     int      `json:"added"`
	Deleted   int      `json:"deleted"`
	Languages []string `json:"languages"`
	TestCmd   string   `json:"test_command,omitempty"`
	LintCmd   string   `json:"lint_command,omitempty"`
	BuildCmd  string   `json:"build_command,omitempty"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req collect.Payload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Diff == "" {
		writeError(w, http.StatusBadRequest, "diff is required")
		return
	}

	c := collect.Collector{}
	ctx, err := c.Collect(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "collecting: "+err.Error())
		return
	}

	nFiles, added, deleted := ctx.Diff.Stats()
	writeJSON(w, http.StatusOK, collectResponse{
		Files:     nFiles,
		Added:     added,
		Deleted:   deleted,
		Languages: ctx.CI.Languages,
		TestCmd:   ctx.CI.TestCommand,
		LintCmd:   ctx.CI.LintCommand,
		BuildCmd:  ctx.CI.BuildCommand,
	})
}

// --- Index ---

type indexRequest struct {
	Root  string   `json:"root,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

type indexResponse struct {
	Files   int `json:"files"`
	Units   int `json:"units"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Total   int `json:"total_units"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexing unavailable: no embedding backend configured")
		return
	}

	var req indexRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	root := req.Root
	if root == "" {
		root = s.repoDir
	}
	if root == "" {
		writeError(w, http.StatusBadRequest, "root is required")
		return
	}

	var stats index.Stats
	var err error
	if len(req.Paths) > 0 {
		stats, err = s.indexer.Update(r.Context(), root, req.Paths)
	} else {
		stats, err = s.indexer.Index(r.Context(), root)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "indexing: "+err.Error())
		return
	}

	total, _ := s.store.Count(s.repo)
	writeJSON(w, http.StatusOK, indexResponse{
		Files:   stats.Files,
		Units:   stats.Units,
		Skipped: stats.Skipped,
		Failed:  stats.Failed,
		Total:   total,
	})
}

// --- Search ---

type searchRequest struct {
	Query string   `json:"query"`
	TopK  int      `json:"top_k,omitempty"`
	Kinds []string `json:"kinds,omitempty"`
}

type searchResponse struct {
	Matches []matchJSON `json:"matches"`
}

type matchJSON struct {
	Path      string  `json:"path"`
	Kind      string  `json:"kind"`
	Name      string  `json:"name"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "search unavailable: no index or embedding backend configured")
		return
	}

	var req searchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	vec, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadGateway, "embedding query: "+err.Error())
		return
	}
	matches, err := s.store.Query(s.repo, vec, topK, req.Kinds...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "querying index: "+err.Error())
		return
	}

	resp := searchResponse{}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, matchJSON{
			Path:      m.Path,
			Kind:      m.Kind,
			Name:      m.Name,
			StartLine: m.StartLine,
			EndLine:   m.EndLine,
			Score:     m.Score,
			Content:   m.Content,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
