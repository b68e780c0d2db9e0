package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowvana/backend/internal/index"
	"github.com/flowvana/backend/internal/storage/models"
)

type fakeNavStore struct {
	navs      []models.Navigation
	upserted  *models.Navigation
	deleted   bool
	deleteErr error
	listErr   error
}

func (s *fakeNavStore) UpsertNavigation(nav *models.Navigation) error {
	s.upserted = nav
	return nil
}

func (s *fakeNavStore) ListNavigations(string) ([]models.Navigation, error) {
	return s.navs, s.listErr
}

func (s *fakeNavStore) DeleteNavigation(string, string) (bool, error) {
	return s.deleted, s.deleteErr
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func newNavApp(store *fakeNavStore) *fiber.App {
	h := NewNavigationHandler(store)
	app := fiber.New()
	app.Post("/navigations", h.Create)
	app.Get("/navigations", h.List)
	app.Delete("/navigations/:navigation_id", h.Delete)
	return app
}

func TestNavigationCreate(t *testing.T) {
	store := &fakeNavStore{}
	app := newNavApp(store)

	resp, body := postJSON(t, app, "/navigations?project_id=t1", map[string]interface{}{
		"navigation_id": "nav-1",
		"url":           "/billing",
		"title":         "Billing",
		"phrases":       []string{"view invoices"},
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "nav-1", body["navigation_id"])

	require.NotNil(t, store.upserted)
	assert.Equal(t, "t1", store.upserted.TenantID)
	assert.Equal(t, []string{"view invoices"}, store.upserted.Phrases)
	assert.False(t, store.upserted.UpdatedAt.IsZero())
}

func TestNavigationCreateGeneratesID(t *testing.T) {
	store := &fakeNavStore{}
	app := newNavApp(store)

	resp, body := postJSON(t, app, "/navigations?project_id=t1", map[string]interface{}{
		"url":     "/billing",
		"title":   "Billing",
		"phrases": []string{"view invoices"},
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["navigation_id"])
}

func TestNavigationCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body map[string]interface{}
	}{
		{"missing project id", "/navigations", map[string]interface{}{"url": "/a", "title": "A", "phrases": []string{"p"}}},
		{"missing url", "/navigations?project_id=t1", map[string]interface{}{"title": "A", "phrases": []string{"p"}}},
		{"missing title", "/navigations?project_id=t1", map[string]interface{}{"url": "/a", "phrases": []string{"p"}}},
		{"empty phrases", "/navigations?project_id=t1", map[string]interface{}{"url": "/a", "title": "A", "phrases": []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newNavApp(&fakeNavStore{})

			resp, _ := postJSON(t, app, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestNavigationList(t *testing.T) {
	store := &fakeNavStore{navs: []models.Navigation{
		{TenantID: "t1", NavigationID: "nav-1", URL: "/billing", Title: "Billing", Phrases: []string{"invoices"}},
	}}
	app := newNavApp(store)

	req := httptest.NewRequest(http.MethodGet, "/navigations?project_id=t1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_count"])

	navs, ok := body["navigations"].([]interface{})
	require.True(t, ok)
	first := navs[0].(map[string]interface{})
	assert.Equal(t, "t1", first["project_id"])
	assert.Equal(t, "/billing", first["url"])
}

func TestNavigationListEmptyIsArray(t *testing.T) {
	app := newNavApp(&fakeNavStore{})

	req := httptest.NewRequest(http.MethodGet, "/navigations?project_id=t1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body := decodeBody(t, resp)

	navs, ok := body["navigations"].([]interface{})
	require.True(t, ok, "navigations must serialize as an array, not null")
	assert.Empty(t, navs)
}

func TestNavigationDelete(t *testing.T) {
	app := newNavApp(&fakeNavStore{deleted: true})

	req := httptest.NewRequest(http.MethodDelete, "/navigations/nav-1?project_id=t1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNavigationDeleteNotFound(t *testing.T) {
	app := newNavApp(&fakeNavStore{deleted: false})

	req := httptest.NewRequest(http.MethodDelete, "/navigations/ghost?project_id=t1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type fakeRebuilder struct {
	summary index.Summary
	err     error
}

func (f *fakeRebuilder) BuildAll(context.Context) (index.Summary, error) {
	return f.summary, f.err
}

func TestAdminReindex(t *testing.T) {
	h := NewAdminHandler(&fakeRebuilder{summary: index.Summary{Built: 2, Rows: 10, FailedTenants: []string{"t3"}}})
	app := fiber.New()
	app.Post("/admin/reindex", h.Reindex)

	resp, body := postJSON(t, app, "/admin/reindex", map[string]interface{}{})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["tenants_built"])
	assert.Equal(t, float64(10), body["phrases"])
	assert.Equal(t, []interface{}{"t3"}, body["failed_tenants"])
}

func TestAdminReindexFailure(t *testing.T) {
	h := NewAdminHandler(&fakeRebuilder{err: errors.New("db gone")})
	app := fiber.New()
	app.Post("/admin/reindex", h.Reindex)

	resp, _ := postJSON(t, app, "/admin/reindex", map[string]interface{}{})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
