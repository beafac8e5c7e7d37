package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/psyprofile/psyprofile-backend/internal/auth/jwt"
	"github.com/psyprofile/psyprofile-backend/internal/profile/exporter"
	"github.com/psyprofile/psyprofile-backend/internal/profile/extractor"
	"github.com/psyprofile/psyprofile-backend/internal/profile/generator"
	"github.com/psyprofile/psyprofile-backend/internal/profile/generator/generatortest"
	"github.com/psyprofile/psyprofile-backend/internal/profile/prompt"
	"github.com/psyprofile/psyprofile-backend/internal/profile/service"
	"github.com/psyprofile/psyprofile-backend/internal/profile/storage"
	"github.com/psyprofile/psyprofile-backend/pkg/config"
	"github.com/psyprofile/psyprofile-backend/pkg/httputil"
	"github.com/psyprofile/psyprofile-backend/pkg/i18n"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
	"github.com/psyprofile/psyprofile-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type testServer struct {
	router    http.Handler
	completer *generatortest.Completer
	tokens    *jwt.Manager
}

func newTestServer(t *testing.T, limiter *httputil.KeyedLimiter, maxUpload int64, opts ...Option) *testServer {
	t.Helper()
	log := logger.Nop()

	store := storage.NewStore(config.SessionConfig{TTL: 30 * time.Minute, MaxDocuments: 10}, log)
	t.Cleanup(store.Close)

	completer := generatortest.NewSections("Summary", "Strengths", "Risk Factors")
	svc := service.NewService(
		store,
		extractor.NewIngestor(extractor.DefaultRegistry(), log),
		prompt.NewBuilder(prompt.Options{Temperature: 0.2, ProfileMaxTokens: 16000, AnswerMaxTokens: 4000}),
		generator.New(completer, nil, log),
		exporter.DefaultRegistry(),
		log,
	)
	t.Cleanup(svc.Wait)

	tokens := jwt.NewManager(&config.JWTConfig{Secret: "test-secret", Issuer: "psyprofile"}, store.TTL())
	h := NewHandler(svc, tokens, limiter, maxUpload, log, opts...)

	r := chi.NewRouter()
	r.Use(httputil.RequestID)
	r.Use(i18n.Middleware)
	r.Route("/api/v1", h.Routes)

	return &testServer{router: r, completer: completer, tokens: tokens}
}

func (s *testServer) startSession(t *testing.T) StartSessionResponse {
	t.Helper()
	rr := testutil.ExecuteRequest(s.router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/sessions", nil))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var body envelope[StartSessionResponse]
	testutil.ParseJSONBody(t, rr, &body)
	require.True(t, body.Success)
	require.NotEmpty(t, body.Data.Token)
	return body.Data
}

func (s *testServer) upload(t *testing.T, token, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	req := testutil.NewUploadRequest(t, "/api/v1/session/documents", filename, contentType, data)
	return testutil.ExecuteRequest(s.router, testutil.WithBearer(req, token)).Result()
}

func TestFullFlow(t *testing.T) {
	s := newTestServer(t, nil, 0)
	sess := s.startSession(t)

	resp := s.upload(t, sess.Token, "cv.pdf", "application/pdf",
		testutil.PDFFixture(t, testutil.ParagraphAnna, testutil.ParagraphBen))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodPost, "/api/v1/session/profile",
		map[string]any{"person": map[string]string{"name": "Anna Keller"}}), sess.Token)
	rr := testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var generated envelope[struct {
		Sections []struct {
			Title string `json:"title"`
		} `json:"sections"`
	}]
	testutil.ParseJSONBody(t, rr, &generated)
	require.Len(t, generated.Data.Sections, 3)
	assert.Equal(t, "Summary", generated.Data.Sections[0].Title)

	req = testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/session/profile/export?format=pptx", nil), sess.Token)
	rr = testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `attachment; filename="psychological_profile.pptx"`)

	data := rr.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	slides := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides++
		}
	}
	assert.Equal(t, 3, slides)

	req = testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/session", nil), sess.Token)
	rr = testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var described envelope[struct {
		SessionID  string `json:"session_id"`
		HasProfile bool   `json:"has_profile"`
		Documents  []struct {
			FileName string `json:"file_name"`
		} `json:"documents"`
	}]
	testutil.ParseJSONBody(t, rr, &described)
	assert.Equal(t, sess.SessionID, described.Data.SessionID)
	assert.True(t, described.Data.HasProfile)
	require.Len(t, described.Data.Documents, 1)

	req = testutil.WithBearer(testutil.NewHTTPRequest(http.MethodDelete, "/api/v1/session", nil), sess.Token)
	rr = testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	req = testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/session/profile", nil), sess.Token)
	rr = testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	var gone envelope[any]
	testutil.ParseJSONBody(t, rr, &gone)
	assert.Equal(t, "NOT_FOUND", gone.Error.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil, 0)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", "UNAUTHORIZED"},
		{"garbage token", "Bearer abc.def.ghi", "TOKEN_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := testutil.ExecuteRequest(s.router, req)
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)

			var body envelope[any]
			testutil.ParseJSONBody(t, rr, &body)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestAuth_TokenForEndedSession(t *testing.T) {
	s := newTestServer(t, nil, 0)

	token, err := s.tokens.Issue("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/session", nil), token.Token)
	rr := testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestUpload_Errors(t *testing.T) {
	s := newTestServer(t, nil, 4096)
	sess := s.startSession(t)

	t.Run("unsupported format is localized", func(t *testing.T) {
		req := testutil.NewUploadRequest(t, "/api/v1/session/documents", "notes.txt", "text/plain", []byte("plain"))
		req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
		rr := testutil.ExecuteRequest(s.router, testutil.WithBearer(req, sess.Token))
		testutil.AssertStatus(t, rr, http.StatusUnsupportedMediaType)

		var body envelope[any]
		testutil.ParseJSONBody(t, rr, &body)
		assert.Equal(t, "UNSUPPORTED_FORMAT", body.Error.Code)
		assert.Contains(t, body.Error.Message, "nicht unterstützt")
	})

	t.Run("corrupt document", func(t *testing.T) {
		resp := s.upload(t, sess.Token, "broken.pdf", "application/pdf", testutil.CorruptPDFFixture())
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		resp := s.upload(t, sess.Token, "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 8192))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("missing file part", func(t *testing.T) {
		req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/session/documents", map[string]string{"file": "x"})
		rr := testutil.ExecuteRequest(s.router, testutil.WithBearer(req, sess.Token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestUpload_CanceledRequestIsNotServerError(t *testing.T) {
	s := newTestServer(t, nil, 0)
	sess := s.startSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := testutil.NewUploadRequest(t, "/api/v1/session/documents", "notes.docx", "",
		testutil.DOCXFixture(t, testutil.ParagraphAnna))
	rr := testutil.ExecuteRequest(s.router, testutil.WithBearer(req, sess.Token).WithContext(ctx))

	assert.Less(t, rr.Code, http.StatusInternalServerError)
	var body envelope[any]
	testutil.ParseJSONBody(t, rr, &body)
	assert.Equal(t, "REQUEST_CANCELED", body.Error.Code)
}

func TestGenerateProfile_WithoutDocuments(t *testing.T) {
	s := newTestServer(t, nil, 0)
	sess := s.startSession(t)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodPost, "/api/v1/session/profile", nil), sess.Token)
	rr := testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)

	var body envelope[any]
	testutil.ParseJSONBody(t, rr, &body)
	assert.Equal(t, "EMPTY_INPUT", body.Error.Code)
	assert.Empty(t, s.completer.Requests())
}

func TestExport_UnknownFormat(t *testing.T) {
	s := newTestServer(t, nil, 0)
	sess := s.startSession(t)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/session/profile/export?format=key", nil), sess.Token)
	rr := testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)

	var body envelope[any]
	testutil.ParseJSONBody(t, rr, &body)
	assert.Equal(t, "EXPORT_FAILED", body.Error.Code)
}

func TestAsk_Validation(t *testing.T) {
	s := newTestServer(t, nil, 0)
	sess := s.startSession(t)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodPost, "/api/v1/session/questions",
		map[string]string{"question": "   "}), sess.Token)
	rr := testutil.ExecuteRequest(s.router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	var body envelope[any]
	testutil.ParseJSONBody(t, rr, &body)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "this field is required", body.Error.Details["question"])
}

func TestModelRoutesAreRateLimited(t *testing.T) {
	s := newTestServer(t, httputil.NewKeyedLimiter(1, 1, time.Hour), 0)
	sess := s.startSession(t)

	ask := func() *http.Response {
		req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodPost, "/api/v1/session/questions",
			map[string]string{"question": "What worries Anna?"}), sess.Token)
		return testutil.ExecuteRequest(s.router, req).Result()
	}

	first := ask()
	assert.Equal(t, http.StatusUnprocessableEntity, first.StatusCode, "no documents yet")

	second := ask()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	// Reads are not limited
	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/session", nil), sess.Token)
	testutil.AssertStatus(t, testutil.ExecuteRequest(s.router, req), http.StatusOK)
}

func TestStartSession_LimitedPerClient(t *testing.T) {
	s := newTestServer(t, nil, 0, WithStartLimiter(httputil.NewKeyedLimiter(1, 2, time.Hour)))

	start := func(remoteAddr string) *http.Response {
		req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/sessions", nil)
		req.RemoteAddr = remoteAddr
		return testutil.ExecuteRequest(s.router, req).Result()
	}

	assert.Equal(t, http.StatusCreated, start("198.51.100.7:40001").StatusCode)
	assert.Equal(t, http.StatusCreated, start("198.51.100.7:40002").StatusCode)

	limited := start("198.51.100.7:40003")
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode, "a new port must not reset the bucket")
	assert.NotEmpty(t, limited.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, start("203.0.113.9:5000").StatusCode)
}
