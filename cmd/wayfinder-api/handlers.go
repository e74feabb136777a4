package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/matthewjhunter/wayfinder"
)

const (
	maxNavlogBody = 8 << 20
	// processTimeout stays under the server's write timeout so a large
	// upload reports what it skipped instead of being cut off.
	processTimeout = 25 * time.Second
)

type handlers struct {
	engine *wayfinder.Engine
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("wayfinder-api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var ve *wayfinder.ValidationError
	switch {
	case errors.Is(err, wayfinder.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, wayfinder.ErrNoEmbedding):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("wayfinder-api: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNavlogs accepts a single navlog object or an array of them.
func (h *handlers) handleNavlogs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNavlogBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	navlogs, err := decodeNavlogs(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(navlogs) == 0 {
		writeError(w, http.StatusBadRequest, "no navlogs in request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), processTimeout)
	defer cancel()

	result, err := h.engine.ProcessNavlogs(ctx, navlogs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeNavlogs(body []byte) ([]wayfinder.Navlog, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var navlogs []wayfinder.Navlog
		if err := json.Unmarshal(trimmed, &navlogs); err != nil {
			return nil, fmt.Errorf("decode navlogs: %w", err)
		}
		return navlogs, nil
	}
	var n wayfinder.Navlog
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return nil, fmt.Errorf("decode navlog: %w", err)
	}
	return []wayfinder.Navlog{n}, nil
}

func (h *handlers) handleThemeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := wayfinder.ThemeListOptions{
		Source: q.Get("source"),
		Sort:   q.Get("sort"),
		Desc:   true,
		Limit:  queryInt(r, "limit", 50),
	}
	if s := q.Get("desc"); s != "" {
		desc, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid desc: "+s)
			return
		}
		opts.Desc = desc
	}
	if s := q.Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: "+s)
			return
		}
		opts.Since = time.Now().Add(-d)
	}

	themes, err := h.engine.ListThemes(r.Context(), opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if themes == nil {
		themes = []wayfinder.Theme{}
	}
	writeJSON(w, http.StatusOK, themes)
}

func (h *handlers) handleTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := h.engine.GetTheme(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, theme)
}

func (h *handlers) handleArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.engine.GetArticle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// handleSearch ranks articles, or themes with type=themes, against q.
func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	threshold := queryFloat(r, "threshold", 0)
	limit := queryInt(r, "limit", 20)

	switch kind := q.Get("type"); kind {
	case "", "articles":
		found, err := h.engine.SearchArticles(r.Context(), query, threshold, limit)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if found == nil {
			found = []wayfinder.Article{}
		}
		writeJSON(w, http.StatusOK, found)
	case "themes":
		found, err := h.engine.SearchThemes(r.Context(), query, threshold, limit)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if found == nil {
			found = []wayfinder.Theme{}
		}
		writeJSON(w, http.StatusOK, found)
	default:
		writeError(w, http.StatusBadRequest, "invalid type: "+kind)
	}
}
