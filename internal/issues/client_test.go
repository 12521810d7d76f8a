package issues

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"html_url": "https://github.com/acme/web/issues/42",
			"number":   42,
		})
	}))
	defer server.Close()

	client := NewClient(&Config{
		BaseURL: server.URL,
		Token:   "ghp_test",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	issue, err := client.CreateIssue(context.Background(), "acme/web", "Login broken", "steps to reproduce")
	require.NoError(t, err)

	assert.Equal(t, "/repos/acme/web/issues", gotPath)
	assert.Equal(t, "Bearer ghp_test", gotAuth)
	assert.Equal(t, "Login broken", gotBody["title"])
	assert.Equal(t, "steps to reproduce", gotBody["body"])

	assert.Equal(t, "https://github.com/acme/web/issues/42", issue.URL)
	assert.Equal(t, 42, issue.Number)
}

func TestCreateIssue_InvalidRepository(t *testing.T) {
	client := NewClient(&Config{BaseURL: "http://unused"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := client.CreateIssue(context.Background(), "no-slash", "T", "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected owner/name")
}

func TestCreateIssue_NonCreatedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := client.CreateIssue(context.Background(), "acme/web", "T", "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestCreateIssue_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.CreateIssue(ctx, "acme/web", "T", "B")
	require.Error(t, err)
}
