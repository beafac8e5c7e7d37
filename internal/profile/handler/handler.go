// Package handler exposes the profile pipeline over HTTP.
package handler

import (
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/psyprofile/psyprofile-backend/internal/auth/jwt"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/internal/profile/exporter"
	"github.com/psyprofile/psyprofile-backend/internal/profile/service"
	"github.com/psyprofile/psyprofile-backend/internal/profile/storage"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"github.com/psyprofile/psyprofile-backend/pkg/httputil"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
)

const defaultMaxUploadBytes = 20 << 20 // 20MB

// Handler handles HTTP requests for profile sessions
type Handler struct {
	service        *service.Service
	tokens         *jwt.Manager
	limiter        *httputil.KeyedLimiter
	maxUploadBytes int64
	startLimiter   *httputil.KeyedLimiter
	log            *logger.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithStartLimiter limits POST /sessions per client address
func WithStartLimiter(l *httputil.KeyedLimiter) Option {
	return func(h *Handler) { h.startLimiter = l }
}

// NewHandler creates a new profile handler. limiter may be nil to disable
// rate limiting of model calls.
func NewHandler(
	svc *service.Service,
	tokens *jwt.Manager,
	limiter *httputil.KeyedLimiter,
	maxUploadBytes int64,
	log *logger.Logger,
	opts ...Option,
) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	h := &Handler{
		service:        svc,
		tokens:         tokens,
		limiter:        limiter,
		maxUploadBytes: maxUploadBytes,
		log:            log.WithComponent("profile-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the session API on r
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.startLimiter != nil {
			r.Use(httputil.RateLimit(h.startLimiter, httputil.ClientKey))
		}
		r.Post("/sessions", h.StartSession)
	})

	r.Route("/session", func(r chi.Router) {
		r.Use(SessionAuth(h.tokens, h.log))

		r.Get("/", h.GetSession)
		r.Delete("/", h.EndSession)

		r.Post("/documents", h.Upload)
		r.Delete("/documents/{documentId}", h.RemoveDocument)

		r.Get("/profile", h.GetProfile)
		r.Get("/profile/export", h.Export)

		// Model calls
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(httputil.RateLimit(h.limiter, httputil.SessionKey))
			}
			r.Post("/profile", h.GenerateProfile)
			r.Post("/questions", h.Ask)
		})
	})
}

// StartSessionResponse is returned when a session is opened
type StartSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartSession handles POST /sessions
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.StartSession(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	token, err := h.tokens.Issue(info.ID)
	if err != nil {
		_ = h.service.EndSession(r.Context(), info.ID)
		h.fail(w, r, errors.Internal("failed to issue session token"))
		return
	}

	httputil.Created(w, StartSessionResponse{
		SessionID: info.ID,
		Token:     token.Token,
		TokenType: token.TokenType,
		ExpiresAt: token.ExpiresAt,
	})
}

// GetSession handles GET /session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Describe(httputil.GetSessionID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, info)
}

// EndSession handles DELETE /session
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), httputil.GetSessionID(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// Upload handles POST /session/documents
// Accepts multipart form with:
// - file: the PDF or DOCX document
// - file_type: optional, "pdf" or "docx"
// The body is read part by part into memory and never spooled to disk.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	doc, err := h.readUpload(r)
	if err != nil {
		storage.ZeroBytes(doc.Data)
		h.fail(w, r, err)
		return
	}

	info, err := h.service.Upload(r.Context(), httputil.GetSessionID(r.Context()), doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.Created(w, info)
}

func (h *Handler) readUpload(r *http.Request) (domain.UploadedDocument, error) {
	var doc domain.UploadedDocument

	mr, err := r.MultipartReader()
	if err != nil {
		return doc, errors.BadRequest("expected a multipart/form-data body")
	}

	found := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return doc, uploadReadError(err)
		}

		switch part.FormName() {
		case "file":
			data, err := io.ReadAll(part)
			if err != nil {
				storage.ZeroBytes(data)
				return doc, uploadReadError(err)
			}
			storage.ZeroBytes(doc.Data)
			doc.Data = data
			doc.FileName = part.FileName()
			doc.ContentType = partContentType(part.Header.Get("Content-Type"))
			found = true
		case "file_type":
			value, err := io.ReadAll(io.LimitReader(part, 64))
			if err != nil {
				return doc, uploadReadError(err)
			}
			doc.DeclaredType = strings.TrimSpace(string(value))
		}
		part.Close()
	}

	if !found {
		return doc, errors.Validation(map[string]string{"file": "this field is required"})
	}
	return doc, nil
}

func partContentType(header string) string {
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return header
	}
	return mediaType
}

func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.New("FILE_TOO_LARGE", "the uploaded file exceeds the size limit", http.StatusRequestEntityTooLarge)
	}
	return errors.BadRequest("invalid multipart body")
}

// RemoveDocument handles DELETE /session/documents/{documentId}
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	if err := h.service.RemoveDocument(r.Context(), httputil.GetSessionID(r.Context()), documentID); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// GenerateProfileRequest carries optional person details
type GenerateProfileRequest struct {
	Person map[string]string `json:"person" validate:"omitempty,max=30,dive,keys,min=1,max=100,endkeys,max=2000"`
}

// GenerateProfile handles POST /session/profile
func (h *Handler) GenerateProfile(w http.ResponseWriter, r *http.Request) {
	var req GenerateProfileRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if err := httputil.Validate(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	profile, err := h.service.GenerateProfile(r.Context(), httputil.GetSessionID(r.Context()), req.Person)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, profile)
}

// GetProfile handles GET /session/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(httputil.GetSessionID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, profile)
}

// Export handles GET /session/profile/export?format=pptx|pdf
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	deck, err := h.service.Export(r.Context(), httputil.GetSessionID(r.Context()), format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.Attachment(w, deck.FileName, deck.ContentType, deck.Data)
}

// AskRequest is a free-form question about the uploaded documents
type AskRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
}

// Ask handles POST /session/questions
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if err := httputil.Validate(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	answer, err := h.service.Ask(r.Context(), httputil.GetSessionID(r.Context()), req.Question)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, answer)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := h.log.
		WithRequestID(httputil.GetRequestID(r.Context())).
		WithSessionID(httputil.GetSessionID(r.Context())).
		WithError(err)

	var appErr *errors.AppError
	isApp := errors.As(err, &appErr)
	if !isApp && r.Context().Err() != nil {
		err = errors.Canceled(r.Context().Err())
		isApp = errors.As(err, &appErr)
	}

	switch {
	case errors.Is(err, errors.ErrCanceled):
		log.Info().Str("code", errors.Code(err)).Msg("request canceled")
	case !isApp || appErr.StatusCode >= http.StatusInternalServerError:
		log.Error().Str("code", errors.Code(err)).Msg("request failed")
	default:
		log.Warn().Str("code", errors.Code(err)).Msg("request failed")
	}
	httputil.ErrorLocalized(w, r, err)
}
