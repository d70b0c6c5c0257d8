package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ferndale/taskmill/internal/auth"
	"github.com/ferndale/taskmill/internal/model"
	"github.com/ferndale/taskmill/internal/schedule"
	"github.com/ferndale/taskmill/internal/store"
	ws "github.com/ferndale/taskmill/internal/websocket"
)

// TemplateHandler serves the template CRUD, lifecycle, and history endpoints.
type TemplateHandler struct {
	templates  *store.TemplateStore
	groups     *store.GroupStore
	executions *store.ExecutionStore
	hub        *ws.Hub
	logger     *slog.Logger
}

func NewTemplateHandler(
	templates *store.TemplateStore,
	groups *store.GroupStore,
	executions *store.ExecutionStore,
	hub *ws.Hub,
	logger *slog.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		templates:  templates,
		groups:     groups,
		executions: executions,
		hub:        hub,
		logger:     logger.With("component", "template_handler"),
	}
}

type templateRequest struct {
	Title                    string                 `json:"title"`
	Description              string                 `json:"description"`
	Reward                   *int64                 `json:"reward"`
	RequiresApproval         bool                   `json:"requires_approval"`
	RequiresImage            bool                   `json:"requires_image"`
	AutoAssign               bool                   `json:"auto_assign"`
	AssignedUserID           *int64                 `json:"assigned_user_id"`
	Timezone                 string                 `json:"timezone"`
	DeleteIncompletePrevious bool                   `json:"delete_incomplete_previous"`
	StartDate                *time.Time             `json:"start_date"`
	EndDate                  *time.Time             `json:"end_date"`
	Tags                     []string               `json:"tags"`
	Rules                    []model.RecurrenceRule `json:"rules"`
}

// Create handles POST /api/groups/{group_id}/templates.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "group_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if !h.authorizeGroup(w, r, groupID) {
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tpl := req.toModel()
	tpl.GroupID = groupID
	tpl.CreatedBy = auth.UserID(r.Context())

	if msg := h.validate(r, tpl); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := h.templates.Create(r.Context(), tpl)
	if err != nil {
		h.logger.Error("create template", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create template")
		return
	}

	h.broadcast("template", "created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// ListByGroup handles GET /api/groups/{group_id}/templates.
func (h *TemplateHandler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "group_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if auth.GroupID(r.Context()) != groupID {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return
	}

	templates, err := h.templates.ListByGroup(r.Context(), groupID)
	if err != nil {
		h.logger.Error("list templates", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	if templates == nil {
		templates = []model.TaskTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// Get handles GET /api/templates/{id}. The response includes the ids of the
// members a firing would currently target, so callers can preview delivery.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl := h.fetch(w, r)
	if tpl == nil {
		return
	}

	recipients, err := h.recipientPreview(r, tpl)
	if err != nil {
		h.logger.Error("resolve recipients", "error", err, "template_id", tpl.ID)
		writeError(w, http.StatusInternalServerError, "failed to load template")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"template":   tpl,
		"recipients": recipients,
	})
}

// Update handles PUT /api/templates/{id}.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	tpl := h.fetch(w, r)
	if tpl == nil {
		return
	}
	if !auth.CanEdit(r.Context()) {
		writeError(w, http.StatusForbidden, "edit permission required")
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	next := req.toModel()
	next.ID = tpl.ID
	next.GroupID = tpl.GroupID
	next.CreatedBy = tpl.CreatedBy

	if msg := h.validate(r, next); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.templates.Update(r.Context(), next)
	if err != nil {
		h.logger.Error("update template", "error", err, "template_id", tpl.ID)
		writeError(w, http.StatusInternalServerError, "failed to update template")
		return
	}

	h.broadcast("template", "updated", updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/templates/{id}. Execution history survives.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tpl := h.fetch(w, r)
	if tpl == nil {
		return
	}
	if !auth.CanEdit(r.Context()) {
		writeError(w, http.StatusForbidden, "edit permission required")
		return
	}

	if err := h.templates.Delete(r.Context(), tpl.ID); err != nil {
		h.logger.Error("delete template", "error", err, "template_id", tpl.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete template")
		return
	}

	h.broadcast("template", "deleted", tpl.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Pause handles POST /api/templates/{id}/pause.
func (h *TemplateHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.StatusPaused, "paused")
}

// Resume handles POST /api/templates/{id}/resume. Firings missed while
// paused are not made up; evaluation restarts from the next due instant.
func (h *TemplateHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.StatusActive, "resumed")
}

func (h *TemplateHandler) setStatus(w http.ResponseWriter, r *http.Request, status model.TemplateStatus, action string) {
	tpl := h.fetch(w, r)
	if tpl == nil {
		return
	}
	if !auth.CanEdit(r.Context()) {
		writeError(w, http.StatusForbidden, "edit permission required")
		return
	}

	if err := h.templates.SetStatus(r.Context(), tpl.ID, status); err != nil {
		h.logger.Error("set template status", "error", err, "template_id", tpl.ID)
		writeError(w, http.StatusInternalServerError, "failed to update template status")
		return
	}

	updated, err := h.templates.GetByID(r.Context(), tpl.ID)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "failed to reload template")
		return
	}

	h.broadcast("template", action, tpl.ID)
	writeJSON(w, http.StatusOK, updated)
}

// History handles GET /api/templates/{id}/executions?limit=N.
func (h *TemplateHandler) History(w http.ResponseWriter, r *http.Request) {
	tpl := h.fetch(w, r)
	if tpl == nil {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	executions, err := h.executions.ListRecent(r.Context(), tpl.ID, limit)
	if err != nil {
		h.logger.Error("list executions", "error", err, "template_id", tpl.ID)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if executions == nil {
		executions = []model.Execution{}
	}
	writeJSON(w, http.StatusOK, executions)
}

// fetch loads the template from the path id and enforces group membership.
// It writes the error response itself and returns nil when the caller
// should stop.
func (h *TemplateHandler) fetch(w http.ResponseWriter, r *http.Request) *model.TaskTemplate {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return nil
	}

	tpl, err := h.templates.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get template", "error", err, "template_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load template")
		return nil
	}
	if tpl == nil {
		writeError(w, http.StatusNotFound, "template not found")
		return nil
	}
	if auth.GroupID(r.Context()) != tpl.GroupID {
		// Same response as not-found so ids don't leak across groups.
		writeError(w, http.StatusNotFound, "template not found")
		return nil
	}
	return tpl
}

func (h *TemplateHandler) authorizeGroup(w http.ResponseWriter, r *http.Request, groupID int64) bool {
	if auth.GroupID(r.Context()) != groupID {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return false
	}
	if !auth.CanEdit(r.Context()) {
		writeError(w, http.StatusForbidden, "edit permission required")
		return false
	}
	return true
}

// validate checks everything the stores don't. Returns "" when valid.
func (h *TemplateHandler) validate(r *http.Request, t *model.TaskTemplate) string {
	if strings.TrimSpace(t.Title) == "" {
		return "title is required"
	}
	if len(t.Rules) == 0 {
		return "at least one recurrence rule is required"
	}
	for i, mr := range t.Rules {
		if _, err := schedule.FromModel(mr); err != nil {
			return "rule " + strconv.Itoa(i+1) + ": " + err.Error()
		}
	}
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		return "unknown timezone " + strconv.Quote(t.Timezone)
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return "end_date must not precede start_date"
	}
	if t.Reward != nil && *t.Reward < 0 {
		return "reward must not be negative"
	}

	if !t.AutoAssign {
		if t.AssignedUserID == nil {
			return "assigned_user_id is required unless auto_assign is set"
		}
		ok, err := h.groups.IsAssignableMember(r.Context(), t.GroupID, *t.AssignedUserID)
		if err != nil {
			h.logger.Error("check assignee", "error", err)
			return "could not verify assignee"
		}
		if !ok {
			return "assigned_user_id is not an assignable member of this group"
		}
	}
	return ""
}

func (h *TemplateHandler) recipientPreview(r *http.Request, t *model.TaskTemplate) ([]int64, error) {
	if !t.AutoAssign {
		if t.AssignedUserID == nil {
			return []int64{}, nil
		}
		return []int64{*t.AssignedUserID}, nil
	}
	ids, err := h.groups.ListAssignableMemberIDs(r.Context(), t.GroupID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (h *TemplateHandler) broadcast(entity, action string, id int64) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(ws.NewMessage(entity, action, id, nil))
}

func (r *templateRequest) toModel() *model.TaskTemplate {
	return &model.TaskTemplate{
		Title:                    r.Title,
		Description:              r.Description,
		Reward:                   r.Reward,
		RequiresApproval:         r.RequiresApproval,
		RequiresImage:            r.RequiresImage,
		AutoAssign:               r.AutoAssign,
		AssignedUserID:           r.AssignedUserID,
		Timezone:                 r.Timezone,
		DeleteIncompletePrevious: r.DeleteIncompletePrevious,
		StartDate:                r.StartDate,
		EndDate:                  r.EndDate,
		Tags:                     r.Tags,
		Rules:                    r.Rules,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}
