package gitscrum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-tracker/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(config.GitScrumConfig{
		BaseURL:        baseURL,
		APIKey:         "key-123",
		ProjectID:      "proj-456",
		TimeoutSeconds: 5,
	})
}

func TestCreateTask(t *testing.T) {
	var gotQuery map[string]string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tasks", r.URL.Path)
		gotQuery = map[string]string{
			"project_key": r.URL.Query().Get("project_key"),
			"api_id":      r.URL.Query().Get("api_id"),
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"uuid":"abc-123"}}`))
	}))
	defer srv.Close()

	ref, err := testClient(srv.URL).CreateTask(context.Background(), "Login crash (High)", "crashes on submit")
	require.NoError(t, err)
	require.Equal(t, "abc-123", ref)
	require.Equal(t, "proj-456", gotQuery["project_key"])
	require.Equal(t, "key-123", gotQuery["api_id"])
	require.Equal(t, "Login crash (High)", gotBody["title"])
	require.Equal(t, "crashes on submit", gotBody["description"])
}

func TestCreateTaskErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "ok but not created", status: http.StatusOK, body: `{"data":{"uuid":"abc"}}`},
		{name: "created without uuid", status: http.StatusCreated, body: `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).CreateTask(context.Background(), "t", "d")
			require.Error(t, err)
		})
	}
}

func TestTaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/tasks/abc-123", r.URL.Path)
		require.Equal(t, "proj-456", r.URL.Query().Get("project_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"uuid":"abc-123","workflow":{"title":"Complete"}}}`))
	}))
	defer srv.Close()

	status, err := testClient(srv.URL).TaskStatus(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Equal(t, StatusComplete, status)
}

func TestTaskStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{}`},
		{name: "missing workflow title", status: http.StatusOK, body: `{"data":{"uuid":"abc-123"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).TaskStatus(context.Background(), "abc-123")
			require.Error(t, err)
		})
	}
}
