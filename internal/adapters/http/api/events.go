package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/xpmeter/internal/domain/snapshot"
)

// maxBodyBytes bounds request bodies; a full bank snapshot is well below it.
const maxBodyBytes = 4 << 20

// IngestDependencies defines the write side of the service.
type IngestDependencies interface {
	SubmitSnapshot(ctx context.Context, snap *snapshot.Snapshot) (duplicate bool, err error)
	SubmitKillCount(ctx context.Context, user, boss string, count int64) error
	HandleChat(ctx context.Context, user, message string) (bool, error)
}

// IngestHandler handles snapshot, kill-count and chat submissions.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// HandlePostSnapshot handles POST /snapshots requests.
func (h *IngestHandler) HandlePostSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_snapshot"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	snap, err := snapshot.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.SubmitSnapshot(r.Context(), snap)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, SnapshotID: snap.ID})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", SnapshotID: snap.ID})
}

type killCountRequest struct {
	User  string `json:"user"`
	Boss  string `json:"boss"`
	Count *int64 `json:"count"`
}

func (k killCountRequest) validate() error {
	switch {
	case strings.TrimSpace(k.User) == "":
		return errors.New("missing user")
	case strings.TrimSpace(k.Boss) == "":
		return errors.New("missing boss")
	case k.Count == nil:
		return errors.New("missing count")
	case *k.Count < 0:
		return errors.New("count must not be negative")
	}
	return nil
}

// HandlePostKillCount handles POST /killcounts requests.
func (h *IngestHandler) HandlePostKillCount(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_killcount"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req killCountRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.SubmitKillCount(r.Context(), req.User, req.Boss, *req.Count); err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

type chatRequest struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// HandlePostChat handles POST /chat requests.
func (h *IngestHandler) HandlePostChat(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_chat"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.User) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing user")))
		return
	}

	accepted, err := h.deps.HandleChat(r.Context(), req.User, req.Message)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	if !accepted {
		writeJSON(w, http.StatusOK, ackResponse{Status: "ignored"})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
