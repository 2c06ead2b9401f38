package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/guided-traffic/payload-gateway/internal/config"
	"github.com/guided-traffic/payload-gateway/internal/gateway/middleware"
	"github.com/guided-traffic/payload-gateway/internal/gateway/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BindAddress:   "127.0.0.1:0",
		ClientTimeout: 5,
		Payload: config.PayloadConfig{
			MaxBytes:   1024,
			Output:     "data",
			Parse:      "parse",
			FailAction: "error",
		},
		Routes: []config.RouteConfig{
			{
				Path:    "/json",
				Methods: []string{"post"},
				Payload: config.PayloadConfig{Allow: []string{"application/json"}},
			},
			{
				Path:    "/upload",
				Payload: config.PayloadConfig{Output: "file", Uploads: t.TempDir(), MaxBytes: 1 << 20},
			},
			{
				Path:    "/stream",
				Payload: config.PayloadConfig{Output: "stream"},
			},
			{
				Path:    "/lenient",
				Payload: config.PayloadConfig{FailAction: "ignore"},
			},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(newTestConfig(t), "test-version")
	require.NoError(t, err)
	return server
}

func serve(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	return rec
}

type inspectResponse struct {
	Mime    string                 `json:"mime"`
	Payload map[string]interface{} `json:"payload"`
}

func decodeInspect(t *testing.T, rec *httptest.ResponseRecorder) inspectResponse {
	t.Helper()
	var body inspectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestNewServer_NilConfig(t *testing.T) {
	server, err := NewServer(nil, "v")
	assert.Error(t, err)
	assert.Nil(t, server)
}

func TestServer_JSONRoute(t *testing.T) {
	server := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/json", strings.NewReader(`{"a":1}`))
	r.Header.Set("Content-Type", "application/json")
	rec := serve(server, r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeInspect(t, rec)
	assert.Equal(t, "application/json", body.Mime)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, body.Payload)

	_, err := uuid.Parse(rec.Header().Get(middleware.RequestIDHeader))
	assert.NoError(t, err)
}

func TestServer_ErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		contentType string
		status      int
		code        string
	}{
		{"too large", "/json", `"` + strings.Repeat("x", 2048) + `"`, "application/json", http.StatusRequestEntityTooLarge, "PayloadTooLarge"},
		{"bad json", "/json", `{"a":`, "application/json", http.StatusBadRequest, "BadJson"},
		{"not allowed", "/json", "a=1", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType, "UnsupportedMediaType"},
		{"bad content type", "/lenient", "x", "multipart/form-data", http.StatusBadRequest, "BadContentType"},
		{"unsupported on fallback", "/elsewhere", "<a/>", "application/xml", http.StatusUnsupportedMediaType, "UnsupportedMediaType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t)

			r := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			rec := serve(server, r)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			body := decodeError(t, rec)
			assert.Equal(t, tt.status, body.StatusCode)
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestServer_IgnoredFailureReachesHandler(t *testing.T) {
	server := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/lenient", strings.NewReader(`{"a":`))
	r.Header.Set("Content-Type", "application/json")
	rec := serve(server, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mime":"application/json","payload":null}`, rec.Body.String())
}

func TestServer_MultipartUpload(t *testing.T) {
	server := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "report"))
	part, err := w.CreateFormFile("doc", "doc.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("uploaded content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	rec := serve(server, r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeInspect(t, rec)
	assert.Equal(t, "report", body.Payload["title"])

	doc := body.Payload["doc"].(map[string]interface{})
	assert.Equal(t, "file", doc["type"])
	assert.Equal(t, "doc.txt", doc["filename"])
	assert.Equal(t, float64(len("uploaded content")), doc["bytes"])

	data, err := os.ReadFile(doc["path"].(string))
	require.NoError(t, err)
	assert.Equal(t, "uploaded content", string(data))
}

func TestServer_StreamDecodeErrorSurfacesInHandler(t *testing.T) {
	server := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/stream", strings.NewReader("not gzip"))
	r.Header.Set("Content-Type", "application/octet-stream")
	r.Header.Set("Content-Encoding", "gzip")
	rec := serve(server, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadCompressedPayload", decodeError(t, rec).Error)
}

func TestServer_StreamRoute(t *testing.T) {
	server := newTestServer(t)

	r := httptest.NewRequest(http.MethodPut, "/stream", strings.NewReader("some bytes"))
	r.Header.Set("Content-Type", "application/octet-stream")
	rec := serve(server, r)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeInspect(t, rec)
	assert.Equal(t, map[string]interface{}{"type": "stream", "bytes": float64(10)}, body.Payload)
}

func TestServer_MethodRestrictions(t *testing.T) {
	server := newTestServer(t)

	rec := serve(server, httptest.NewRequest(http.MethodPut, "/json", strings.NewReader("{}")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "MethodNotAllowed", decodeError(t, rec).Error)

	// Unconfigured paths only accept the default body methods
	rec = serve(server, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Preflight(t *testing.T) {
	server := newTestServer(t)

	rec := serve(server, httptest.NewRequest(http.MethodOptions, "/json", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Encoding")
}

func TestServer_ReusesIncomingRequestID(t *testing.T) {
	server := newTestServer(t)
	id := uuid.NewString()

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(middleware.RequestIDHeader, id)
	rec := serve(server, r)

	assert.Equal(t, id, rec.Header().Get(middleware.RequestIDHeader))
}

func TestServer_HealthAndVersion(t *testing.T) {
	server := newTestServer(t)

	rec := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","active_requests":0}`, rec.Body.String())

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":"test-version","service":"payload-gateway"}`, rec.Body.String())

	server.markShutdown()
	rec = serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(io.Reader(rec.Body)).Decode(&health))
	assert.Equal(t, "shutting_down", health["status"])
}
