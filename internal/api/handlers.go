package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"

	"github.com/kalambet/itembank/internal/ledger"
	"github.com/kalambet/itembank/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// StatusSource provides current item statuses.
type StatusSource interface {
	Statuses() []ledger.ItemStatus
}

// HistoryStore reads loan history.
type HistoryStore interface {
	RecentEvents(limit, offset int) ([]storage.Event, error)
	ItemEvents(item string, limit int) ([]storage.Event, error)
	GetEvent(id string) (storage.Event, error)
}

// Refresher schedules a board refresh.
type Refresher interface {
	Request()
}

type AppDeps struct {
	Items       StatusSource
	History     HistoryStore
	Board       Refresher // optional; if nil, POST /board/refresh returns 503
	Token       string
	CORSOrigins []string
}

// NewAppHandler returns the management API. /health is public, everything
// else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/items", handleItems(deps))
		r.Get("/items/{item}/history", handleItemHistory(deps))
		r.Get("/history", handleHistory(deps))
		r.Get("/history/{id}", handleHistoryEvent(deps))
		r.Post("/board/refresh", handleBoardRefresh(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ToItemStatuses(deps.Items.Statuses()))
	}
}

func handleItemHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item := chi.URLParam(r, "item")
		known := false
		for _, st := range deps.Items.Statuses() {
			if st.Item.Name == item {
				known = true
				break
			}
		}
		if !known {
			httpError(w, http.StatusNotFound, "not_found", "unknown item %q", item)
			return
		}

		limit, err := queryInt(r, "limit", defaultHistoryLimit)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		events, err := deps.History.ItemEvents(item, clampLimit(limit))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ToHistoryEvents(events))
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", defaultHistoryLimit)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil || offset < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "offset must be a non-negative integer")
			return
		}
		events, err := deps.History.RecentEvents(clampLimit(limit), offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ToHistoryEvents(events))
	}
}

func handleHistoryEvent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		e, err := deps.History.GetEvent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "event %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ToHistoryEvents([]storage.Event{e})[0])
	}
}

func handleBoardRefresh(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Board == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "board is not running")
			return
		}
		deps.Board.Request()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
