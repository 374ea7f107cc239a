package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/freebusy"
	"github.com/starford/dagaz/internal/icsexport"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/planner"
	"github.com/starford/dagaz/internal/session"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	planner  *planner.Planner
	sessions *session.Manager
	freebusy freebusy.Options
	now      func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithClock overrides the clock used for default dates.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// WithFreeBusy sets the free-slot search bounds.
func WithFreeBusy(opts freebusy.Options) HandlerOption {
	return func(h *Handler) { h.freebusy = opts }
}

// NewHandler creates a new Handler.
func NewHandler(p *planner.Planner, s *session.Manager, opts ...HandlerOption) *Handler {
	h := &Handler{planner: p, sessions: s, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) location() *time.Location {
	if h.freebusy.Location != nil {
		return h.freebusy.Location
	}
	return time.Local
}

// Plan handles POST /api/ai/plan.
//
//	@Summary		Turn a natural-language request into a change plan
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PlanRequest	true	"Message and optional snapshot"
//	@Success		200		{object}	Plan
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Failure		504		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/plan [post]
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "plan", apperr.InvalidInput("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeError(w, "plan", apperr.InvalidInput("userMessage required"))
		return
	}

	today := h.now().In(h.location())
	if req.Today != "" {
		d, err := time.ParseInLocation(models.DateLayout, req.Today, h.location())
		if err != nil {
			writeError(w, "plan", apperr.InvalidInput("today must be a date in YYYY-MM-DD format"))
			return
		}
		today = d
	}

	var snapshot []models.Entity
	if req.ExistingEvents != nil {
		snapshot = *req.ExistingEvents
	} else {
		col, err := h.sessions.Snapshot(r.Context(), UserFrom(r))
		if err != nil {
			writeError(w, "load snapshot", err)
			return
		}
		snapshot = col.Entities
	}

	plan, err := h.planner.Plan(r.Context(), planner.Request{
		Message:  req.UserMessage,
		Snapshot: snapshot,
		Today:    today,
	})
	if err != nil {
		writeError(w, "plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Apply handles POST /api/ai/apply.
//
//	@Summary		Apply an approved plan to the caller's collection
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		Plan	true	"Approved plan"
//	@Success		200		{object}	CollectionResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/apply [post]
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	plan, err := planner.ParsePlan(string(body))
	if err != nil {
		// A client-supplied plan that fails the schema is a bad request.
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error:   err.Error(),
			Kind:    apperr.KindName(err),
			Reasons: apperr.Reasons(err),
		})
		return
	}

	col, err := h.sessions.ApplyPlan(r.Context(), UserFrom(r), plan.Operations)
	if err != nil {
		writeError(w, "apply plan", err)
		return
	}
	w.Header().Set("ETag", `"`+col.Checksum+`"`)
	writeJSON(w, http.StatusOK, col)
}

// ListEntities handles GET /api/entities.
//
//	@Summary		Get the caller's entity collection
//	@Tags			entities
//	@Produce		json
//	@Success		200	{object}	CollectionResponse
//	@Security		BearerAuth
//	@Router			/entities [get]
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	col, err := h.sessions.Snapshot(r.Context(), UserFrom(r))
	if err != nil {
		writeError(w, "list entities", err)
		return
	}
	w.Header().Set("ETag", `"`+col.Checksum+`"`)
	writeJSON(w, http.StatusOK, col)
}

// ReplaceEntities handles PUT /api/entities.
//
//	@Summary		Replace the caller's collection with optimistic concurrency
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header	string			false	"Collection checksum"
//	@Param			body		body	ReplaceRequest	true	"New collection"
//	@Success		200		{object}	CollectionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities [put]
func (h *Handler) ReplaceEntities(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ReplaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Entities == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("entities is required"))
		return
	}

	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	col, err := h.sessions.Replace(r.Context(), UserFrom(r), req.Entities, ifMatch)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			writeJSON(w, http.StatusConflict, errResponse{Error: "checksum mismatch", Kind: "conflict"})
			return
		}
		writeError(w, "replace entities", err)
		return
	}
	w.Header().Set("ETag", `"`+col.Checksum+`"`)
	writeJSON(w, http.StatusOK, col)
}

// FreeSlot handles GET /api/free.
//
//	@Summary		Find the earliest free slot in working hours
//	@Tags			entities
//	@Produce		json
//	@Param			duration	query		int		false	"Minutes (default 60)"
//	@Param			from		query		string	false	"YYYY-MM-DD or RFC 3339 (default now)"
//	@Success		200			{object}	SlotResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/free [get]
func (h *Handler) FreeSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minutes := 60
	if v := q.Get("duration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("duration must be a positive number of minutes"))
			return
		}
		minutes = n
	}
	from, err := parseFrom(q.Get("from"), h.now(), h.location())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("from must be YYYY-MM-DD or RFC 3339"))
		return
	}

	col, err := h.sessions.Snapshot(r.Context(), UserFrom(r))
	if err != nil {
		writeError(w, "free slot", err)
		return
	}
	slot, ok, err := freebusy.EarliestSlot(col.Entities, from, time.Duration(minutes)*time.Minute, h.freebusy)
	if err != nil {
		writeError(w, "free slot", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errResponse{Error: "no free slot within horizon", Kind: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// Calendar handles GET /api/calendar.ics.
//
//	@Summary		Export the caller's collection as iCalendar
//	@Tags			entities
//	@Produce		text/calendar
//	@Success		200	{string}	string
//	@Security		BearerAuth
//	@Router			/calendar.ics [get]
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	col, err := h.sessions.Snapshot(r.Context(), UserFrom(r))
	if err != nil {
		writeError(w, "calendar export", err)
		return
	}
	body, err := icsexport.Encode(col.Entities, h.now(), h.location())
	if err != nil {
		writeError(w, "calendar export", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("ETag", `"`+col.Checksum+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Warn("calendar export write failed", slog.String("error", err.Error()))
	}
}

func parseFrom(v string, now time.Time, loc *time.Location) (time.Time, error) {
	if v == "" {
		return now.In(loc), nil
	}
	if t, err := time.ParseInLocation(models.DateLayout, v, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
