package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/castverify/internal/app/tasks"
	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
)

type loadRequest struct {
	ActorFID int64  `json:"actor_fid" binding:"required,gt=0"`
	Action   string `json:"action" binding:"required"`
}

type openRequest struct {
	ActorFID  int64  `json:"actor_fid" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required"`
	Action    string `json:"action" binding:"required"`
}

type verifyRequest struct {
	ActorFID int64  `json:"actor_fid" binding:"required,gt=0"`
	Action   string `json:"action" binding:"required"`
}

// taskResponse is the display snapshot of one task.
type taskResponse struct {
	ID          string     `json:"id"`
	Reference   string     `json:"reference"`
	Action      string     `json:"action"`
	Username    string     `json:"username,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	State       string     `json:"state"`
	Opened      bool       `json:"opened"`
	Error       bool       `json:"error"`
	Verified    bool       `json:"verified"`
	Attempts    int        `json:"attempts"`
	ContentID   string     `json:"content_id,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type listResponse struct {
	ActorFID     int64          `json:"actor_fid"`
	Action       string         `json:"action,omitempty"`
	AllCompleted bool           `json:"all_completed"`
	Tasks        []taskResponse `json:"tasks"`
}

type outcomeResponse struct {
	TaskID      string `json:"task_id"`
	Reference   string `json:"reference"`
	State       string `json:"state"`
	Found       bool   `json:"found"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

type verifyResponse struct {
	listResponse
	Outcomes []outcomeResponse `json:"outcomes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "build": s.cfg.Build})
}

func (s *Server) handleList(c *gin.Context) {
	fid, err := strconv.ParseInt(c.Query("actor_fid"), 10, 64)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_actor", engagement.ErrInvalidActor)
		return
	}
	actor := engagement.ActorID(fid)

	tracker, ok := s.sessions.Lookup(actor)
	if !ok {
		s.fail(c, http.StatusNotFound, "not_loaded", tasks.ErrNotLoaded)
		return
	}
	c.JSON(http.StatusOK, newListResponse(actor, tracker.Action(), tracker.Snapshot()))
}

func (s *Server) handleLoad(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	action, err := engagement.ParseActionKind(req.Action)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_action", err)
		return
	}

	actor := engagement.ActorID(req.ActorFID)
	tracker, err := s.sessions.Get(actor)
	if err != nil {
		s.failErr(c, err)
		return
	}

	records, err := tracker.Load(c.Request.Context(), action)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newListResponse(actor, action, records))
}

func (s *Server) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	action, err := engagement.ParseActionKind(req.Action)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_action", err)
		return
	}

	tracker, ok := s.sessions.Lookup(engagement.ActorID(req.ActorFID))
	if !ok {
		s.fail(c, http.StatusConflict, "not_loaded", tasks.ErrNotLoaded)
		return
	}

	rec, err := tracker.OpenTask(c.Request.Context(), engagement.ContentReference(req.Reference), action)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(rec))
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	action, err := engagement.ParseActionKind(req.Action)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_action", err)
		return
	}

	ctx := c.Request.Context()
	s.metrics.IncVerifyRequests(ctx, action.String())

	actor := engagement.ActorID(req.ActorFID)
	tracker, ok := s.sessions.Lookup(actor)
	if !ok {
		s.fail(c, http.StatusConflict, "not_loaded", tasks.ErrNotLoaded)
		return
	}

	outcomes, err := tracker.VerifyAll(ctx, actor, action)
	if err != nil {
		s.failErr(c, err)
		return
	}

	resp := verifyResponse{
		listResponse: newListResponse(actor, action, tracker.Snapshot()),
		Outcomes:     make([]outcomeResponse, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		resp.Outcomes = append(resp.Outcomes, newOutcomeResponse(o))
	}
	c.JSON(http.StatusOK, resp)
}

// failErr maps a tracker error onto a status code.
func (s *Server) failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engagement.ErrInvalidActor),
		errors.Is(err, engagement.ErrUnknownAction),
		errors.Is(err, engagement.ErrEmptyReference):
		s.fail(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, tasks.ErrActorMismatch):
		s.fail(c, http.StatusForbidden, "actor_mismatch", err)
	case errors.Is(err, tasks.ErrTaskNotFound):
		s.fail(c, http.StatusNotFound, "task_not_found", err)
	case errors.Is(err, tasks.ErrNotLoaded), errors.Is(err, tasks.ErrActionMismatch):
		s.fail(c, http.StatusConflict, "precondition", err)
	case errors.Is(err, engagement.ErrNotConfigured):
		s.fail(c, http.StatusServiceUnavailable, "not_configured", err)
	case errors.Is(err, tasks.ErrSessionsClosed):
		s.fail(c, http.StatusServiceUnavailable, "shutting_down", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.fail(c, http.StatusRequestTimeout, "cancelled", err)
	default:
		s.logger.Error(c.Request.Context(), "request failed", "error", err, "path", c.FullPath())
		s.fail(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}

func (s *Server) fail(c *gin.Context, status int, reason string, err error) {
	s.metrics.IncRequestErrors(c.Request.Context(), reason)
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func newListResponse(actor engagement.ActorID, action engagement.ActionKind, records []task.Record) listResponse {
	resp := listResponse{
		ActorFID:     int64(actor),
		Action:       action.String(),
		AllCompleted: len(records) > 0,
		Tasks:        make([]taskResponse, 0, len(records)),
	}
	for _, rec := range records {
		if !rec.IsCompleted() {
			resp.AllCompleted = false
		}
		resp.Tasks = append(resp.Tasks, newTaskResponse(rec))
	}
	return resp
}

func newTaskResponse(rec task.Record) taskResponse {
	resp := taskResponse{
		ID:        rec.Key(),
		Reference: rec.Reference.String(),
		Action:    rec.Action.String(),
		Username:  rec.Username,
		AvatarURL: rec.AvatarURL,
		State:     rec.State.String(),
		Opened:    rec.Opened,
		Error:     rec.Error,
		Verified:  rec.Verified,
		Attempts:  rec.Attempts,
		ContentID: rec.ContentID.String(),
		LastError: rec.LastError,
	}
	if !rec.CompletedAt.IsZero() {
		at := rec.CompletedAt.UTC()
		resp.CompletedAt = &at
	}
	return resp
}

func newOutcomeResponse(o tasks.Outcome) outcomeResponse {
	resp := outcomeResponse{
		TaskID:    o.Key,
		Reference: o.Reference.String(),
		State:     o.State.String(),
		Found:     o.Found,
		Skipped:   o.Skipped,
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
		var rerr *engagement.ResolutionError
		if errors.As(o.Err, &rerr) {
			resp.ExplorerURL = rerr.ExplorerURL()
		}
	}
	return resp
}
