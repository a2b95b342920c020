package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/xpmeter/internal/domain/measurement"
)

// SeriesDependencies defines the read side of the service.
type SeriesDependencies interface {
	Series(ctx context.Context, measurement string, limit int) ([]SeriesEntry, error)
	UserSeries(ctx context.Context, user string) ([]SeriesEntry, error)
}

var measurements = map[string]bool{
	measurement.SeriesSkill:     true,
	measurement.SeriesSelf:      true,
	measurement.SeriesSelfLoc:   true,
	measurement.SeriesInventory: true,
	measurement.SeriesKillCount: true,
}

// SeriesHandler handles series reads.
type SeriesHandler struct {
	deps     SeriesDependencies
	maxLimit int
}

// NewSeriesHandler creates a new series handler.
func NewSeriesHandler(deps SeriesDependencies, maxLimit int) *SeriesHandler {
	return &SeriesHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetSeries handles GET /series?limit=N&measurement=M requests.
func (h *SeriesHandler) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_series"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	n, err := strconv.Atoi(q.Get("limit"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
		return
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", WrapKind(op, ErrBadRequest, errors.New("limit exceeds "+strconv.Itoa(h.maxLimit))))
		return
	}
	m := q.Get("measurement")
	if m != "" && !measurements[m] {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("unknown measurement "+m)))
		return
	}

	entries, err := h.deps.Series(r.Context(), m, n)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	if entries == nil {
		entries = []SeriesEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetUser handles GET /users/{user} requests.
func (h *SeriesHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_user"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/users/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	user, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	entries, err := h.deps.UserSeries(r.Context(), user)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
