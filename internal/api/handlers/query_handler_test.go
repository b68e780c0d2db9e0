package handlers

import (
	"bytes"
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

	"github.com/flowvana/backend/internal/dispatch"
	"github.com/flowvana/backend/internal/search"
)

type fakeSearcher struct {
	results  []search.Result
	err      error
	gotLimit int
	gotQuery string
}

func (f *fakeSearcher) Search(_ context.Context, _, query string, limit int, _ float64) ([]search.Result, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.results, f.err
}

type fakeDispatcher struct {
	resp *dispatch.Response
	got  dispatch.Request
}

func (f *fakeDispatcher) Handle(_ context.Context, req dispatch.Request) *dispatch.Response {
	f.got = req
	return f.resp
}

type fakeFeedback struct {
	updated     bool
	err         error
	gotID       string
	gotFeedback string
}

func (f *fakeFeedback) UpdateLogFeedback(requestID, feedback string) (bool, error) {
	f.gotID = requestID
	f.gotFeedback = feedback
	return f.updated, f.err
}

func newQueryApp(searcher *fakeSearcher, dispatcher *fakeDispatcher, feedback *fakeFeedback) *fiber.App {
	h := NewQueryHandler(searcher, dispatcher, feedback, nil, 4, 0)
	app := fiber.New()
	app.Post("/query", h.HandleQuery)
	app.Post("/query/chat", h.HandleChat)
	app.Post("/query/feedback", h.HandleFeedback)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp, decoded
}

func TestHandleQueryResponseShape(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{
		{URL: "/billing", Title: "Billing", BestPhrase: "view invoices", Score: 0.91, Source: search.SourceSemantic},
		{URL: "/settings", Title: "Settings", BestPhrase: "account settings", Score: 0.72, Source: search.SourceSemantic},
	}}
	app := newQueryApp(searcher, &fakeDispatcher{}, &fakeFeedback{})

	resp, body := postJSON(t, app, "/query?project_id=t1", map[string]interface{}{"query": "invoices", "k": 2})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Query processed successfully", body["message"])
	assert.NotEmpty(t, body["request_id"])

	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)

	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/billing", first["url"])
	assert.Equal(t, "Navigate", first["type"])
	assert.Equal(t, "Billing", first["title"])
	assert.Equal(t, "view invoices", first["description"])

	assert.Equal(t, "invoices", searcher.gotQuery)
	assert.Equal(t, 2, searcher.gotLimit)
}

func TestHandleQueryEmptyResultsIsArray(t *testing.T) {
	app := newQueryApp(&fakeSearcher{}, &fakeDispatcher{}, &fakeFeedback{})

	resp, body := postJSON(t, app, "/query?project_id=t1", map[string]interface{}{"query": "nothing matches"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	results, ok := body["results"].([]interface{})
	require.True(t, ok, "results must serialize as an array, not null")
	assert.Empty(t, results)
}

func TestHandleQueryMissingProjectID(t *testing.T) {
	app := newQueryApp(&fakeSearcher{}, &fakeDispatcher{}, &fakeFeedback{})

	resp, body := postJSON(t, app, "/query", map[string]interface{}{"query": "invoices"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Project ID is required", body["error"])
}

func TestHandleQueryMissingQuery(t *testing.T) {
	app := newQueryApp(&fakeSearcher{}, &fakeDispatcher{}, &fakeFeedback{})

	resp, body := postJSON(t, app, "/query?project_id=t1", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Query is required", body["error"])
}

func TestHandleQueryDefaultLimit(t *testing.T) {
	searcher := &fakeSearcher{}
	app := newQueryApp(searcher, &fakeDispatcher{}, &fakeFeedback{})

	postJSON(t, app, "/query?project_id=t1", map[string]interface{}{"query": "invoices"})

	assert.Equal(t, 4, searcher.gotLimit)
}

func TestHandleQuerySearchFailure(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index offline")}
	app := newQueryApp(searcher, &fakeDispatcher{}, &fakeFeedback{})

	resp, body := postJSON(t, app, "/query?project_id=t1", map[string]interface{}{"query": "invoices"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestHandleChat(t *testing.T) {
	dispatcher := &fakeDispatcher{resp: &dispatch.Response{
		Success:    true,
		Message:    "Help response generated successfully",
		Completion: "Try the billing page.",
		Query:      "where are invoices",
		RequestID:  "req-1",
	}}
	app := newQueryApp(&fakeSearcher{}, dispatcher, &fakeFeedback{})

	// Unknown body fields are accepted and ignored.
	resp, body := postJSON(t, app, "/query/chat?project_id=t1", map[string]interface{}{
		"query":     "where are invoices",
		"flows":     []map[string]interface{}{{"name": "add_contact", "description": "Create a contact"}},
		"k":         5,
		"min_score": 0.4,
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Try the billing page.", body["completion"])
	assert.Equal(t, "req-1", body["request_id"])

	assert.Equal(t, "t1", dispatcher.got.TenantID)
	require.Len(t, dispatcher.got.Flows, 1)
	assert.Equal(t, "add_contact", dispatcher.got.Flows[0].Name)
}

func TestHandleChatOmitsEmptyFlowFields(t *testing.T) {
	dispatcher := &fakeDispatcher{resp: &dispatch.Response{
		Success:    true,
		Message:    "Help response generated successfully",
		Completion: "hi",
		Query:      "q",
		RequestID:  "req-1",
	}}
	app := newQueryApp(&fakeSearcher{}, dispatcher, &fakeFeedback{})

	_, body := postJSON(t, app, "/query/chat?project_id=t1", map[string]interface{}{"query": "q"})

	_, hasFlow := body["flow_name"]
	assert.False(t, hasFlow)
	_, hasInputs := body["inputs"]
	assert.False(t, hasInputs)
}

func TestHandleChatMissingProjectID(t *testing.T) {
	app := newQueryApp(&fakeSearcher{}, &fakeDispatcher{}, &fakeFeedback{})

	resp, body := postJSON(t, app, "/query/chat", map[string]interface{}{"query": "q"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Project ID is required", body["error"])
}

func TestHandleFeedback(t *testing.T) {
	feedback := &fakeFeedback{updated: true}
	app := newQueryApp(&fakeSearcher{}, &fakeDispatcher{}, feedback)

	resp, body := postJSON(t, app, "/query/feedback?request_id=req-1", map[string]interface{}{"response": "positive"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "req-1", feedback.gotID)
	assert.Equal(t, "positive", feedback.gotFeedback)
}

func TestHandleFeedbackValidation(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     map[string]interface{}
		expected string
	}{
		{"missing request id", "/query/feedback", map[string]interface{}{"response": "positive"}, "Request ID is required"},
		{"invalid value", "/query/feedback?request_id=r1", map[string]interface{}{"response": "meh"}, "Feedback response must be positive or negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newQueryApp(&fakeSearcher{}, &fakeDispatcher{}, &fakeFeedback{})

			resp, body := postJSON(t, app, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.expected, body["error"])
		})
	}
}

func TestHandleFeedbackUnknownRequest(t *testing.T) {
	app := newQueryApp(&fakeSearcher{}, &fakeDispatcher{}, &fakeFeedback{updated: false})

	resp, body := postJSON(t, app, "/query/feedback?request_id=ghost", map[string]interface{}{"response": "negative"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}
