package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClient_CreateRecord tests the create endpoint shape and auth header.
func TestClient_CreateRecord(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		body["id"] = "rec-99"
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sekrit")
	rec, err := c.CreateRecord(context.Background(), "app-1", map[string]any{"title": "hi"})
	require.NoError(t, err)

	assert.Equal(t, "Token sekrit", gotAuth)
	assert.Equal(t, "/applications/app-1/records/", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "rec-99", rec["id"])
	assert.Equal(t, "hi", rec["title"])
}

// TestClient_UpdateRecord tests the PATCH endpoint.
func TestClient_UpdateRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/applications/app-1/records/rec-1/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": "rec-1", "status": "done"})
	}))
	defer srv.Close()

	rec, err := NewClient(srv.URL, "t").UpdateRecord(context.Background(), "app-1", "rec-1", map[string]any{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, "done", rec["status"])
}

// TestClient_DeleteRecord tests the DELETE endpoint with an empty body.
func TestClient_DeleteRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "t").DeleteRecord(context.Background(), "app-1", "rec-1")
	require.NoError(t, err)
}

// TestClient_GetSchema tests schema decoding.
func TestClient_GetSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/applications/app-1/", r.URL.Path)
		w.Write([]byte(`{"id":"app-1","name":"Tasks","structure":[{"slug":"title","field_type":"textfield","required":true}]}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "t").GetSchema(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Tasks", res.Name)
	require.Len(t, res.Fields, 1)
	assert.True(t, res.Fields[0].Required)
}

// TestClient_ListRecords tests the bounded list probe.
func TestClient_ListRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "limit=1", r.URL.RawQuery)
		w.Write([]byte(`{"items":[{"id":"rec-1"}]}`))
	}))
	defer srv.Close()

	items, err := NewClient(srv.URL, "t").ListRecords(context.Background(), "app-1", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// TestClient_StatusError tests typed non-2xx errors.
func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no such application"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").GetRecord(context.Background(), "app-x", "rec-1")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "no such application")
}
