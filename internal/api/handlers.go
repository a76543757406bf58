package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"matchpulse/internal/condition"
	"matchpulse/internal/model"
	"matchpulse/internal/storage"
)

// filterRequest is the wire shape for creating a filter. Conditions stay
// raw until they pass validation.
type filterRequest struct {
	UserID              string                   `json:"user_id"`
	Name                string                   `json:"name"`
	Description         string                   `json:"description"`
	Conditions          []condition.RawCondition `json:"conditions"`
	IsActive            bool                     `json:"is_active"`
	IsShared            bool                     `json:"is_shared"`
	NotificationEnabled bool                     `json:"notification_enabled"`
	TelegramEnabled     bool                     `json:"telegram_enabled"`
}

type validationResponse struct {
	Error    string   `json:"error"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type conflictResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	ConflictID string `json:"conflict_id"`
}

func validOwner(userID string) bool {
	id := strings.ToLower(strings.TrimSpace(userID))
	return id != "" && id != "anonymous"
}

func (s *Server) handleCreateFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if !validOwner(req.UserID) {
		s.writeError(w, http.StatusUnauthorized, "valid user_id is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	vr := condition.Validate(req.Conditions)
	if !vr.IsValid {
		s.writeJSON(w, http.StatusBadRequest, validationResponse{
			Error: "invalid conditions", Errors: vr.Errors, Warnings: vr.Warnings,
		})
		return
	}

	f := model.Filter{
		ID:                  uuid.NewString(),
		UserID:              req.UserID,
		Name:                req.Name,
		Description:         req.Description,
		Conditions:          vr.Conditions,
		IsActive:            req.IsActive,
		IsShared:            req.IsShared,
		NotificationEnabled: req.NotificationEnabled,
		TelegramEnabled:     req.TelegramEnabled,
	}
	coerceGate(&f)

	existing, err := s.store.ListFiltersForOwner(r.Context(), f.UserID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list filters: "+err.Error())
		return
	}
	if dup := condition.CheckDuplicate(f, existing); dup.IsDuplicate {
		s.writeJSON(w, http.StatusConflict, conflictResponse{
			Error:      fmt.Sprintf("duplicate filter by %s", dup.Reason),
			Reason:     string(dup.Reason),
			ConflictID: dup.ConflictID,
		})
		return
	}

	if err := s.store.CreateFilter(r.Context(), &f); err != nil {
		s.writeError(w, http.StatusInternalServerError, "create filter: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !validOwner(userID) {
		s.writeError(w, http.StatusUnauthorized, "valid user_id is required")
		return
	}

	filters, err := s.store.ListFiltersForOwner(r.Context(), userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list filters: "+err.Error())
		return
	}
	if filters == nil {
		filters = []model.Filter{}
	}
	s.writeJSON(w, http.StatusOK, filters)
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f, err := s.store.GetFilter(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "filter not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "get filter: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

// filterPatch is the wire shape for a partial update. Absent fields are
// left unchanged.
type filterPatch struct {
	Name                *string                   `json:"name"`
	Description         *string                   `json:"description"`
	Conditions          *[]condition.RawCondition `json:"conditions"`
	IsActive            *bool                     `json:"is_active"`
	IsShared            *bool                     `json:"is_shared"`
	NotificationEnabled *bool                     `json:"notification_enabled"`
	TelegramEnabled     *bool                     `json:"telegram_enabled"`
}

func (s *Server) handleUpdateFilter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	f, err := s.store.GetFilter(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "filter not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "get filter: "+err.Error())
		return
	}

	var patch filterPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			s.writeError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		f.Name = *patch.Name
	}
	if patch.Description != nil {
		f.Description = *patch.Description
	}
	if patch.Conditions != nil {
		vr := condition.Validate(*patch.Conditions)
		if !vr.IsValid {
			s.writeJSON(w, http.StatusBadRequest, validationResponse{
				Error: "invalid conditions", Errors: vr.Errors, Warnings: vr.Warnings,
			})
			return
		}
		f.Conditions = vr.Conditions
	}
	if patch.IsActive != nil {
		f.IsActive = *patch.IsActive
	}
	if patch.IsShared != nil {
		f.IsShared = *patch.IsShared
	}
	if patch.NotificationEnabled != nil {
		f.NotificationEnabled = *patch.NotificationEnabled
	}
	if patch.TelegramEnabled != nil {
		f.TelegramEnabled = *patch.TelegramEnabled
	}
	coerceGate(f)

	if patch.Name != nil || patch.Conditions != nil {
		existing, err := s.store.ListFiltersForOwner(r.Context(), f.UserID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "list filters: "+err.Error())
			return
		}
		if dup := condition.CheckDuplicate(*f, existing); dup.IsDuplicate {
			s.writeJSON(w, http.StatusConflict, conflictResponse{
				Error:      fmt.Sprintf("duplicate filter by %s", dup.Reason),
				Reason:     string(dup.Reason),
				ConflictID: dup.ConflictID,
			})
			return
		}
	}

	if err := s.store.UpdateFilter(r.Context(), f); err != nil {
		s.writeError(w, http.StatusInternalServerError, "update filter: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.store.DeleteFilter(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "filter not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "delete filter: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importRequest struct {
	UserID  string          `json:"user_id"`
	Filters []filterRequest `json:"filters"`
}

type importItemResult struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	FilterID string `json:"filter_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type importResponse struct {
	Success int                `json:"success"`
	Failed  int                `json:"failed"`
	Results []importItemResult `json:"results"`
}

// handleImportFilters accepts a batch of raw filters, validates each one
// independently, and upserts by normalized name + owner so re-imports do
// not create duplicate rows. Failures are reported per index.
func (s *Server) handleImportFilters(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if !validOwner(req.UserID) {
		s.writeError(w, http.StatusUnauthorized, "valid user_id is required")
		return
	}

	resp := importResponse{Results: []importItemResult{}}
	for i, item := range req.Filters {
		res := s.importOne(r, req.UserID, i, item)
		if res.Status == "failed" {
			resp.Failed++
		} else {
			resp.Success++
		}
		resp.Results = append(resp.Results, res)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) importOne(r *http.Request, userID string, index int, item filterRequest) importItemResult {
	fail := func(msg string) importItemResult {
		return importItemResult{Index: index, Status: "failed", Error: msg}
	}

	if strings.TrimSpace(item.Name) == "" {
		return fail("name is required")
	}
	vr := condition.Validate(item.Conditions)
	if !vr.IsValid {
		return fail("invalid conditions: " + strings.Join(vr.Errors, "; "))
	}

	f := model.Filter{
		UserID:              userID,
		Name:                item.Name,
		Description:         item.Description,
		Conditions:          vr.Conditions,
		IsActive:            item.IsActive,
		IsShared:            item.IsShared,
		NotificationEnabled: item.NotificationEnabled,
		TelegramEnabled:     item.TelegramEnabled,
	}
	coerceGate(&f)

	existing, err := s.store.ListFiltersForOwner(r.Context(), userID)
	if err != nil {
		return fail("list filters: " + err.Error())
	}

	// Same normalized name means update-in-place; a condition-set clash
	// with a differently named filter is a conflict.
	name := condition.NormalizeName(f.Name)
	for _, ex := range existing {
		if condition.NormalizeName(ex.Name) == name {
			f.ID = ex.ID
			if dup := condition.CheckDuplicate(f, existing); dup.IsDuplicate {
				return fail(fmt.Sprintf("duplicate by %s of filter %s", dup.Reason, dup.ConflictID))
			}
			if err := s.store.UpdateFilter(r.Context(), &f); err != nil {
				return fail("update filter: " + err.Error())
			}
			return importItemResult{Index: index, Status: "updated", FilterID: f.ID}
		}
	}

	if dup := condition.CheckDuplicate(f, existing); dup.IsDuplicate {
		return fail(fmt.Sprintf("duplicate by %s of filter %s", dup.Reason, dup.ConflictID))
	}

	f.ID = uuid.NewString()
	if err := s.store.CreateFilter(r.Context(), &f); err != nil {
		return fail("create filter: " + err.Error())
	}
	return importItemResult{Index: index, Status: "created", FilterID: f.ID}
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !validOwner(userID) {
		s.writeError(w, http.StatusUnauthorized, "valid user_id is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	ns, err := s.store.ListNotifications(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list notifications: "+err.Error())
		return
	}
	if ns == nil {
		ns = []model.Notification{}
	}
	s.writeJSON(w, http.StatusOK, ns)
}

type linkRequest struct {
	UserID string `json:"user_id"`
	ChatID int64  `json:"chat_id"`
}

func (s *Server) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if !validOwner(req.UserID) {
		s.writeError(w, http.StatusUnauthorized, "valid user_id is required")
		return
	}
	if req.ChatID == 0 {
		s.writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	if err := s.store.LinkTelegramChat(r.Context(), req.UserID, req.ChatID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "link telegram chat: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// coerceGate forces the notification flags off while the condition set is
// incomplete. The scheduler re-checks this before dispatch.
func coerceGate(f *model.Filter) {
	if !condition.IsComplete(f.Conditions) {
		f.NotificationEnabled = false
		f.TelegramEnabled = false
	}
}
