// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ReignOfTea/protest-dash/internal/actions"
	"github.com/ReignOfTea/protest-dash/internal/buffer"
	"github.com/ReignOfTea/protest-dash/internal/content"
	"github.com/ReignOfTea/protest-dash/internal/errors"
	"github.com/ReignOfTea/protest-dash/internal/github"
	"github.com/ReignOfTea/protest-dash/internal/journal"
	"github.com/ReignOfTea/protest-dash/internal/logging"
	"github.com/ReignOfTea/protest-dash/internal/middleware"
	"github.com/ReignOfTea/protest-dash/internal/users"
	"github.com/ReignOfTea/protest-dash/internal/validation"
	shared "github.com/ReignOfTea/protest-dash/shared/types"
)

// Committer lands a batch of file changes as one commit on the data
// branch.
type Committer interface {
	CommitBatch(ctx context.Context, req shared.CommitRequest, actorTag string) (*shared.CommitResult, error)
}

// UpstreamLog lists commits straight from the hosting provider, which
// includes pushes made outside the dashboard.
type UpstreamLog interface {
	RecentCommits(ctx context.Context, limit int) ([]github.Commit, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	e := errors.From(err)
	writeJSON(w, e.Code, map[string]any{"error": e})
}

func principal(r *http.Request) middleware.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

type fileResponse struct {
	SHA      *string         `json:"sha"`
	Content  json.RawMessage `json:"content"`
	Dirty    bool            `json:"dirty"`
	NotFound bool            `json:"notFound,omitempty"`
}

func toFileResponse(f shared.TrackedFile) fileResponse {
	return fileResponse{
		SHA:      f.RevisionMarker,
		Content:  json.RawMessage(f.Content),
		Dirty:    f.Dirty,
		NotFound: f.RevisionMarker == nil,
	}
}

// FileHandler serves content file reads and the buffer-local write
// operations: staging, discarding and the location cascade delete.
type FileHandler struct {
	buffers *buffer.Manager
}

func NewFileHandler(buffers *buffer.Manager) *FileHandler {
	return &FileHandler{buffers: buffers}
}

func (h *FileHandler) session(r *http.Request) *buffer.Buffer {
	return h.buffers.ForSession(principal(r).SessionID)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validation.ValidateFileName(name); err != nil {
		writeError(w, err)
		return
	}

	file, err := h.session(r).Get(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(file))
}

func (h *FileHandler) Put(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validation.ValidateFileName(name); err != nil {
		writeError(w, err)
		return
	}

	raw, err := validation.ValidateStageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	file, err := h.session(r).SetContent(name, raw)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(file))
}

type bufferFile struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	Dirty          bool      `json:"dirty"`
	RevisionMarker *string   `json:"revisionMarker"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// Buffer returns the session's staging state without file contents.
func (h *FileHandler) Buffer(w http.ResponseWriter, r *http.Request) {
	files := h.session(r).Files()

	out := make([]bufferFile, 0, len(files))
	dirty := []string{}
	for _, f := range files {
		out = append(out, bufferFile{
			Name:           f.Name,
			Path:           f.Path,
			Dirty:          f.Dirty,
			RevisionMarker: f.RevisionMarker,
			FetchedAt:      f.FetchedAt,
		})
		if f.Dirty {
			dirty = append(dirty, f.Path)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": out, "dirty": dirty})
}

func (h *FileHandler) Discard(w http.ResponseWriter, r *http.Request) {
	paths, err := validation.ValidateDiscardRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, content.Normalize(p))
	}

	h.session(r).Discard(names...)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *FileHandler) RemoveLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeError(w, errors.ValidationError("location id is required", nil))
		return
	}

	removed, err := h.session(r).RemoveLocation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

type commitResponse struct {
	OK        bool     `json:"ok"`
	CommitSHA string   `json:"commitSha"`
	Report    string   `json:"report"`
	Files     []string `json:"files"`
}

// CommitHandler turns staged or explicit file changes into commits and
// serves the commit history views.
type CommitHandler struct {
	buffers   *buffer.Manager
	committer Committer
	journal   *journal.Store
	upstream  UpstreamLog
	logger    *logging.Logger
}

func NewCommitHandler(buffers *buffer.Manager, committer Committer, jstore *journal.Store, upstream UpstreamLog, logger *logging.Logger) *CommitHandler {
	return &CommitHandler{
		buffers:   buffers,
		committer: committer,
		journal:   jstore,
		upstream:  upstream,
		logger:    logger,
	}
}

// Batch handles a direct commit of explicit file payloads. The caller's
// buffer is synced to the committed state so a dashboard holding stale
// staged copies does not immediately re-push them.
func (h *CommitHandler) Batch(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	req, err := validation.ValidateBatchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.committer.CommitBatch(r.Context(), *req, p.ActorTag)
	if err != nil {
		writeError(w, err)
		return
	}

	buf := h.buffers.ForSession(p.SessionID)
	for _, f := range req.Files {
		if _, err := buf.SetContent(content.Normalize(f.Path), []byte(f.Content)); err != nil {
			h.logger.WithRequestID(r.Context()).Warn("buffer sync after batch failed",
				zap.String("path", f.Path),
				zap.Error(err),
			)
		}
	}
	buf.MarkClean(result.Files)

	h.record(r.Context(), p.ActorTag, req.Message, result)
	writeJSON(w, http.StatusOK, commitResponse{OK: true, CommitSHA: result.SHA, Report: result.Report, Files: result.Files})
}

// Push commits every dirty file in the caller's buffer.
func (h *CommitHandler) Push(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	message, err := validation.ValidatePushRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	buf := h.buffers.ForSession(p.SessionID)
	files := buf.Dirty()
	if len(files) == 0 {
		writeError(w, errors.ValidationError("no staged changes to push", nil))
		return
	}

	result, err := h.committer.CommitBatch(r.Context(), shared.CommitRequest{Message: message, Files: files}, p.ActorTag)
	if err != nil {
		writeError(w, err)
		return
	}

	buf.MarkClean(result.Files)

	h.record(r.Context(), p.ActorTag, message, result)
	writeJSON(w, http.StatusOK, commitResponse{OK: true, CommitSHA: result.SHA, Report: result.Report, Files: result.Files})
}

// record writes the journal entry for a landed commit. The commit is
// already on the branch, so a journal failure is logged, not surfaced.
func (h *CommitHandler) record(ctx context.Context, actorTag, message string, result *shared.CommitResult) {
	err := h.journal.Record(&journal.Entry{
		SHA:      result.SHA,
		ActorTag: actorTag,
		Message:  message,
		Report:   result.Report,
		Files:    result.Files,
	})
	if err != nil {
		h.logger.WithRequestID(ctx).Warn("journal write failed",
			zap.String("sha", result.SHA),
			zap.Error(err),
		)
	}
}

// Recent lists landed commits, newest first. source=upstream bypasses
// the journal and asks the hosting provider directly.
func (h *CommitHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, errors.ValidationError("limit must be between 1 and 100", nil))
			return
		}
		limit = n
	}

	if r.URL.Query().Get("source") == "upstream" {
		commits, err := h.upstream.RecentCommits(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
		return
	}

	entries, err := h.journal.Recent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": entries})
}

// StatusHandler proxies CI state for the data repository.
type StatusHandler struct {
	actions *actions.Client
}

func NewStatusHandler(actions *actions.Client) *StatusHandler {
	return &StatusHandler{actions: actions}
}

func (h *StatusHandler) Latest(w http.ResponseWriter, r *http.Request) {
	run, err := h.actions.Latest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// UserHandler exposes the caller's identity and the allowlist.
type UserHandler struct {
	users *users.Store
}

func NewUserHandler(store *users.Store) *UserHandler {
	return &UserHandler{users: store}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, errors.Unauthorized("missing session token"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": p.User, "actorTag": p.ActorTag})
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": h.users.List()})
}
