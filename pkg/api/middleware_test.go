package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ssargent/kvsnap/pkg/rdb"
	"github.com/ssargent/kvsnap/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	kv := store.New(store.Options{})
	require.NoError(t, kv.Set("greeting", "hello"))

	reg := prometheus.NewRegistry()
	server := NewServer(kv, nil, ServerConfig{
		APIKey:       apiKey,
		SnapshotPath: filepath.Join(t.TempDir(), "dump.rdb"),
	}, NewMetrics(reg), nil)
	return NewRouter(server, reg)
}

func serve(t *testing.T, h http.Handler, method, path, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequireAPIKey_Routes(t *testing.T) {
	router := newTestRouter(t, "s3cret")

	routes := []struct {
		method string
		path   string
		want   int
	}{
		{method: "GET", path: "/api/v1/kv/greeting", want: http.StatusOK},
		{method: "GET", path: "/api/v1/kv/absent", want: http.StatusNotFound},
		{method: "GET", path: "/api/v1/kv?prefix=gr", want: http.StatusOK},
		{method: "POST", path: "/api/v1/kv/hits/incr", want: http.StatusOK},
		{method: "GET", path: "/api/v1/snapshot", want: http.StatusOK},
		{method: "GET", path: "/api/v1/archive", want: http.StatusNotFound},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := serve(t, router, rt.method, rt.path, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, apiKeyHeader, w.Header().Get("WWW-Authenticate"))
			assert.JSONEq(t, `{"success":false,"error":"Missing X-API-Key header"}`, w.Body.String())

			w = serve(t, router, rt.method, rt.path, "s3cre")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"success":false,"error":"Invalid API key"}`, w.Body.String())

			w = serve(t, router, rt.method, rt.path, "s3cret")
			assert.Equal(t, rt.want, w.Code)
			assert.Empty(t, w.Header().Get("WWW-Authenticate"))
		})
	}

	// the scrape endpoint sits outside the authenticated group
	w := serve(t, router, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAPIKey_EmptyKeyDisablesAuth(t *testing.T) {
	router := newTestRouter(t, "")

	w := serve(t, router, "GET", "/api/v1/kv/greeting", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, router, "GET", "/api/v1/kv/greeting", "anything")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSendSuccess_ValueResponse(t *testing.T) {
	ttl := int64(1500)

	w := httptest.NewRecorder()
	sendSuccess(w, ValueResponse{Key: "session", Value: "abc", TTLMs: &ttl})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"success":true,"data":{"key":"session","value":"abc","ttl_ms":1500}}`,
		w.Body.String())

	w = httptest.NewRecorder()
	sendSuccess(w, ValueResponse{Key: "name", Value: "bob"})
	assert.JSONEq(t, `{"success":true,"data":{"key":"name","value":"bob"}}`, w.Body.String())
}

func TestSendSuccess_SnapshotResponse(t *testing.T) {
	w := httptest.NewRecorder()
	sendSuccess(w, &SnapshotResponse{
		Path:       "/var/lib/kvsnap/dump.rdb",
		Bytes:      120,
		Entries:    3,
		Checksum:   fmt.Sprintf("%016x", uint64(0xabc)),
		DurationMs: 2,
	})

	var resp struct {
		Success bool             `json:"success"`
		Data    SnapshotResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Data.Entries)
	assert.Equal(t, "0000000000000abc", resp.Data.Checksum)
	assert.Empty(t, resp.Data.ArchiveID)
}

func TestSendError_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	sendError(w, "Snapshot too large", http.StatusRequestEntityTooLarge)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"error":"Snapshot too large"}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	_, formatErr := rdb.Decode([]byte("NOTRDB0009"), rdb.SinkFunc(func(rdb.Entry) error { return nil }))
	require.Error(t, formatErr)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "missing key", err: fmt.Errorf("lookup: %w", store.ErrKeyNotFound), want: http.StatusNotFound},
		{name: "empty key", err: store.ErrInvalidKey, want: http.StatusBadRequest},
		{name: "not an integer", err: store.ErrNotInteger, want: http.StatusConflict},
		{name: "overflow", err: store.ErrOverflow, want: http.StatusConflict},
		{name: "body too large", err: &http.MaxBytesError{Limit: 10}, want: http.StatusRequestEntityTooLarge},
		{name: "bad snapshot", err: fmt.Errorf("load: %w", formatErr), want: http.StatusUnprocessableEntity},
		{name: "other", err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
