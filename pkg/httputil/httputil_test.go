package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"github.com/psyprofile/psyprofile-backend/pkg/i18n"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestErrorLocalized(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		locale     string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "unsupported format in english",
			err:        errors.UnsupportedFormat("txt"),
			locale:     "en",
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "UNSUPPORTED_FORMAT",
			wantMsg:    `the file type "txt" is not supported`,
		},
		{
			name:       "upstream in german",
			err:        errors.Upstream("provider said no", nil),
			locale:     "de",
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_ERROR",
			wantMsg:    "KI-Dienst",
		},
		{
			name:       "plain error hides internals",
			err:        assertErr("db password is hunter2"),
			locale:     "en",
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "unexpected error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(i18n.WithLocale(req.Context(), tt.locale))
			rec := httptest.NewRecorder()

			ErrorLocalized(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tt.wantMsg)
			assert.NotContains(t, rec.Body.String(), "hunter2")
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]interface{}{"id": "abc"}, resp.Data)
}

func TestAttachment(t *testing.T) {
	rec := httptest.NewRecorder()
	Attachment(rec, "profile.pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation", []byte("PK\x03\x04"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="profile.pptx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	var v map[string]string
	err := DecodeJSON(req, &v)
	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST", errors.Code(err))
}

func TestValidate(t *testing.T) {
	type questionRequest struct {
		Question string `json:"question" validate:"required,min=3,max=20"`
	}

	require.NoError(t, Validate(questionRequest{Question: "Any risks?"}))

	err := Validate(questionRequest{Question: ""})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Equal(t, "this field is required", appErr.Details["question"])
}

func TestRequestIDAndSessionLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", &buf)

	h := RequestID(Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithSessionID(r.Context(), "sess-123"))
		assert.Equal(t, "sess-123", GetSessionID(r.Context()))
		assert.NotEmpty(t, GetRequestID(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `"session_id":"sess-123"`)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"request_id":"`+rec.Header().Get("X-Request-ID")+`"`)
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, rec).Error.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := NewKeyedLimiter(1, 2, time.Minute)
	h := RateLimit(limiter, func(r *http.Request) string {
		return r.Header.Get("X-Key")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("a").Code)
	assert.Equal(t, http.StatusOK, call("a").Code)

	limited := call("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, "TOO_MANY_REQUESTS", decode(t, limited).Error.Code)

	assert.Equal(t, http.StatusOK, call("b").Code, "buckets are per key")
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"198.51.100.7:40001", "198.51.100.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"198.51.100.7", "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.want, ClientKey(req))
		})
	}
}

func TestKeyedLimiter_Disabled(t *testing.T) {
	limiter := NewKeyedLimiter(0, 0, 0)
	for i := 0; i < 100; i++ {
		assert.Zero(t, limiter.Reserve("k"))
	}
}

func TestKeyedLimiter_EvictsIdleBuckets(t *testing.T) {
	limiter := NewKeyedLimiter(1, 1, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Reserve("old")
	now = now.Add(2 * time.Minute)
	limiter.Reserve("new")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.buckets, "old")
	assert.Contains(t, limiter.buckets, "new")
}
