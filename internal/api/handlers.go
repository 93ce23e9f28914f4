package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func (s *Server) startCrawl(w http.ResponseWriter, _ *http.Request) {
	// The crawl outlives the request, so it runs under the server's context.
	err := s.crawl.Start(s.runCtx)
	if errors.Is(err, crawler.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "crawl is already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) stopCrawl(w http.ResponseWriter, r *http.Request) {
	if err := s.crawl.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) crawlStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.crawl.Running()})
}

func (s *Server) crawlProgress(w http.ResponseWriter, r *http.Request) {
	summary, err := s.crawl.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load crawl progress")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intQueryParam(q.Get("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := intQueryParam(q.Get("offset"), 0)

	papers, err := s.papers.List(r.Context(), q.Get("category"), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list papers")
		return
	}
	if papers == nil {
		papers = []crawler.Paper{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": papers, "count": len(papers)})
}

func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	arxivID := chi.URLParam(r, "arxiv_id")
	paper, err := s.papers.GetByArxivID(r.Context(), arxivID)
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "paper not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load paper")
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func intQueryParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
