package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"matchpulse/internal/model"
	"matchpulse/internal/storage"
)

func newTestServer(t *testing.T) (*Server, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, log), store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

func validCreateBody(name string) map[string]any {
	return map[string]any{
		"user_id": "u-1",
		"name":    name,
		"conditions": []map[string]any{
			{"field": "goal_differential", "min": 2, "mode": "at_least"},
		},
		"is_active":            true,
		"notification_enabled": true,
	}
}

func TestCreateFilter(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/filters", validCreateBody("Late Goals"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}

	f := decode[model.Filter](t, rec)
	if f.ID == "" {
		t.Error("expected generated id")
	}
	if !f.NotificationEnabled {
		t.Error("complete filter should keep notification_enabled")
	}
	if len(f.Conditions) != 1 || f.Conditions[0].Field != model.FieldGoalDifferential {
		t.Errorf("conditions = %+v", f.Conditions)
	}
}

func TestCreateFilterRejectsBadOwner(t *testing.T) {
	s, _ := newTestServer(t)

	for _, userID := range []string{"", "  ", "anonymous", "Anonymous"} {
		body := validCreateBody("Late Goals")
		body["user_id"] = userID
		rec := doJSON(t, s, http.MethodPost, "/filters", body)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("user_id %q: status = %d, want 401", userID, rec.Code)
		}
	}
}

func TestCreateFilterValidation(t *testing.T) {
	s, _ := newTestServer(t)

	body := validCreateBody("Broken")
	body["conditions"] = []map[string]any{
		{"field": "nonsense", "min": 1, "mode": "at_least"},
		{"field": "corners", "min": 9, "max": 2, "mode": "between"},
	}
	rec := doJSON(t, s, http.MethodPost, "/filters", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode[validationResponse](t, rec)
	if len(resp.Errors) != 2 {
		t.Errorf("errors = %v, want 2 entries", resp.Errors)
	}
}

func TestCreateFilterCoercesGateWhenIncomplete(t *testing.T) {
	s, _ := newTestServer(t)

	body := validCreateBody("Draft")
	body["conditions"] = []map[string]any{
		{"field": "corners", "mode": "at_least"},
	}
	body["notification_enabled"] = true
	body["telegram_enabled"] = true

	rec := doJSON(t, s, http.MethodPost, "/filters", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}
	f := decode[model.Filter](t, rec)
	if f.NotificationEnabled || f.TelegramEnabled {
		t.Errorf("flags = %v/%v, want both coerced false for incomplete conditions",
			f.NotificationEnabled, f.TelegramEnabled)
	}
}

func TestCreateDuplicateConflict(t *testing.T) {
	s, _ := newTestServer(t)

	first := doJSON(t, s, http.MethodPost, "/filters", validCreateBody("Late Goals"))
	if first.Code != http.StatusCreated {
		t.Fatalf("first create: %d", first.Code)
	}
	created := decode[model.Filter](t, first)

	// Same normalized name.
	byName := validCreateBody("  late GOALS ")
	byName["conditions"] = []map[string]any{
		{"field": "corners", "min": 5, "mode": "at_least"},
	}
	rec := doJSON(t, s, http.MethodPost, "/filters", byName)
	if rec.Code != http.StatusConflict {
		t.Fatalf("name dup status = %d, want 409", rec.Code)
	}
	conflict := decode[conflictResponse](t, rec)
	want := conflictResponse{Error: "duplicate filter by name", Reason: "name", ConflictID: created.ID}
	if diff := cmp.Diff(want, conflict); diff != "" {
		t.Errorf("conflict mismatch (-want +got):\n%s", diff)
	}

	// Same canonical condition set, different name.
	byConds := validCreateBody("Different Name")
	rec = doJSON(t, s, http.MethodPost, "/filters", byConds)
	if rec.Code != http.StatusConflict {
		t.Fatalf("conditions dup status = %d, want 409", rec.Code)
	}
	conflict = decode[conflictResponse](t, rec)
	if conflict.Reason != "conditions" || conflict.ConflictID != created.ID {
		t.Errorf("conflict = %+v, want reason=conditions conflict_id=%s", conflict, created.ID)
	}

	// Another user may create an identical filter.
	other := validCreateBody("Late Goals")
	other["user_id"] = "u-2"
	rec = doJSON(t, s, http.MethodPost, "/filters", other)
	if rec.Code != http.StatusCreated {
		t.Errorf("cross-user create status = %d, want 201", rec.Code)
	}
}

func TestGetAndListFilters(t *testing.T) {
	s, _ := newTestServer(t)

	created := decode[model.Filter](t, doJSON(t, s, http.MethodPost, "/filters", validCreateBody("Late Goals")))

	rec := doJSON(t, s, http.MethodGet, "/filters/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/filters/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing get status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/filters?user_id=u-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	list := decode[[]model.Filter](t, rec)
	if len(list) != 1 {
		t.Errorf("list count = %d, want 1", len(list))
	}

	rec = doJSON(t, s, http.MethodGet, "/filters", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("list without owner status = %d, want 401", rec.Code)
	}
}

func TestUpdateFilter(t *testing.T) {
	s, _ := newTestServer(t)

	created := decode[model.Filter](t, doJSON(t, s, http.MethodPost, "/filters", validCreateBody("Late Goals")))

	rec := doJSON(t, s, http.MethodPatch, "/filters/"+created.ID, map[string]any{
		"description": "fires late in the match",
		"is_shared":   true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	updated := decode[model.Filter](t, rec)
	if updated.Description != "fires late in the match" || !updated.IsShared {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.Name != "Late Goals" {
		t.Errorf("untouched name changed to %q", updated.Name)
	}

	// Replacing conditions with an unbounded set coerces the gate off.
	rec = doJSON(t, s, http.MethodPatch, "/filters/"+created.ID, map[string]any{
		"conditions": []map[string]any{{"field": "corners", "mode": "at_least"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("conditions patch status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	updated = decode[model.Filter](t, rec)
	if updated.NotificationEnabled {
		t.Error("notification_enabled should be coerced false after incomplete patch")
	}

	rec = doJSON(t, s, http.MethodPatch, "/filters/no-such-id", map[string]any{"is_shared": true})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing patch status = %d, want 404", rec.Code)
	}
}

func TestUpdateFilterDuplicateConflict(t *testing.T) {
	s, _ := newTestServer(t)

	_ = decode[model.Filter](t, doJSON(t, s, http.MethodPost, "/filters", validCreateBody("Late Goals")))
	second := validCreateBody("Corner Storm")
	second["conditions"] = []map[string]any{
		{"field": "corners", "min": 8, "mode": "at_least"},
	}
	target := decode[model.Filter](t, doJSON(t, s, http.MethodPost, "/filters", second))

	rec := doJSON(t, s, http.MethodPatch, "/filters/"+target.ID, map[string]any{"name": "late goals"})
	if rec.Code != http.StatusConflict {
		t.Errorf("rename to duplicate status = %d, want 409", rec.Code)
	}
}

func TestDeleteFilter(t *testing.T) {
	s, _ := newTestServer(t)

	created := decode[model.Filter](t, doJSON(t, s, http.MethodPost, "/filters", validCreateBody("Late Goals")))

	rec := doJSON(t, s, http.MethodDelete, "/filters/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, s, http.MethodDelete, "/filters/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestImportFilters(t *testing.T) {
	s, _ := newTestServer(t)

	body := map[string]any{
		"user_id": "u-1",
		"filters": []map[string]any{
			{
				"name": "Late Goals",
				"conditions": []map[string]any{
					{"field": "goal_differential", "min": 2, "mode": "at_least"},
				},
			},
			{
				// Missing name.
				"conditions": []map[string]any{
					{"field": "corners", "min": 8, "mode": "at_least"},
				},
			},
			{
				"name": "Card Fest",
				"conditions": []map[string]any{
					{"field": "yellow_cards", "min": 4, "mode": "at_least"},
				},
			},
		},
	}

	rec := doJSON(t, s, http.MethodPost, "/filters/import", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decode[importResponse](t, rec)
	if resp.Success != 2 || resp.Failed != 1 {
		t.Fatalf("success/failed = %d/%d, want 2/1", resp.Success, resp.Failed)
	}
	if resp.Results[1].Index != 1 || resp.Results[1].Status != "failed" || resp.Results[1].Error == "" {
		t.Errorf("failed item = %+v, want index 1 with reason", resp.Results[1])
	}

	// Re-import upserts by name: no duplicate rows, items update in place.
	rec = doJSON(t, s, http.MethodPost, "/filters/import", body)
	resp = decode[importResponse](t, rec)
	if resp.Success != 2 || resp.Failed != 1 {
		t.Fatalf("re-import success/failed = %d/%d, want 2/1", resp.Success, resp.Failed)
	}
	for _, r := range resp.Results {
		if r.Status == "created" {
			t.Errorf("re-import created a new row: %+v", r)
		}
	}

	list := decode[[]model.Filter](t, doJSON(t, s, http.MethodGet, "/filters?user_id=u-1", nil))
	if len(list) != 2 {
		t.Errorf("filter count after re-import = %d, want 2", len(list))
	}
}

func TestListNotifications(t *testing.T) {
	s, store := newTestServer(t)

	n := model.Notification{
		ID: "n-1", UserID: "u-1", FilterID: "f-1", MatchID: "m-1", Message: "fired",
	}
	if err := store.CreateNotification(context.Background(), &n); err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	rec := doJSON(t, s, http.MethodGet, "/notifications?user_id=u-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	list := decode[[]model.Notification](t, rec)
	if len(list) != 1 || list[0].Message != "fired" {
		t.Errorf("notifications = %+v", list)
	}

	rec = doJSON(t, s, http.MethodGet, "/notifications", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no owner status = %d, want 401", rec.Code)
	}
}

func TestLinkTelegram(t *testing.T) {
	s, store := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/telegram/link", linkRequest{UserID: "u-1", ChatID: 4242})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	chatID, ok, err := store.TelegramChatID(context.Background(), "u-1")
	if err != nil || !ok || chatID != 4242 {
		t.Errorf("stored chat = %d ok=%v err=%v, want 4242", chatID, ok, err)
	}

	rec = doJSON(t, s, http.MethodPost, "/telegram/link", linkRequest{UserID: "anonymous", ChatID: 1})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/telegram/link", linkRequest{UserID: "u-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing chat status = %d, want 400", rec.Code)
	}
}
