// Package service runs the profile pipeline for one session at a time:
// extract text, build the prompt, call the model, parse sections, export.
package service

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/psyprofile/psyprofile-backend/internal/profile/audit"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/internal/profile/exporter"
	"github.com/psyprofile/psyprofile-backend/internal/profile/extractor"
	"github.com/psyprofile/psyprofile-backend/internal/profile/prompt"
	"github.com/psyprofile/psyprofile-backend/internal/profile/storage"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
)

// Pipeline stages reported to metrics
const (
	StageExtract  = "extract"
	StagePrompt   = "prompt"
	StageGenerate = "generate"
	StageAnswer   = "answer"
	StageExport   = "export"
)

const auditTimeout = 5 * time.Second

// Generator produces profiles and answers from built requests
type Generator interface {
	Generate(ctx context.Context, req *domain.ProfileRequest) (*domain.GeneratedProfile, error)
	Answer(ctx context.Context, req *domain.ProfileRequest) (*domain.Completion, error)
}

// Metrics receives pipeline measurements
type Metrics interface {
	RecordStage(stage, code string, duration time.Duration)
	SessionStarted()
}

type nopMetrics struct{}

func (nopMetrics) RecordStage(string, string, time.Duration) {}
func (nopMetrics) SessionStarted()                          {}

// Service orchestrates the profile pipeline on top of the session store
type Service struct {
	store     *storage.Store
	ingestor  *extractor.Ingestor
	builder   *prompt.Builder
	generator Generator
	exporters *exporter.Registry
	recorder  audit.Recorder
	metrics   Metrics
	log       *logger.Logger
	now       func() time.Time

	audits sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditRecorder(r audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a new profile service
func NewService(
	store *storage.Store,
	ingestor *extractor.Ingestor,
	builder *prompt.Builder,
	generator Generator,
	exporters *exporter.Registry,
	log *logger.Logger,
	opts ...Option,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		store:     store,
		ingestor:  ingestor,
		builder:   builder,
		generator: generator,
		exporters: exporters,
		metrics:   nopMetrics{},
		log:       log.WithComponent("profile-service"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = audit.NewLogRecorder(log)
	}
	return s
}

// StartSession opens a new empty session
func (s *Service) StartSession(ctx context.Context) (*domain.SessionInfo, error) {
	start := time.Now()

	sess, err := s.store.Create()
	if err != nil {
		return nil, errors.Internal("failed to start session")
	}
	s.metrics.SessionStarted()

	var info domain.SessionInfo
	err = s.store.View(sess.ID(), func(sess *storage.Session) error {
		info = sess.Info(s.store.TTL())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{SessionID: sess.ID(), Action: audit.ActionSessionStart}, start, nil)
	return &info, nil
}

// EndSession wipes the session and everything it holds
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := s.store.End(sessionID)
	s.record(ctx, audit.Entry{SessionID: sessionID, Action: audit.ActionSessionEnd}, start, err)
	return err
}

// Describe returns the session summary without document content
func (s *Service) Describe(sessionID string) (*domain.SessionInfo, error) {
	var info domain.SessionInfo
	err := s.store.View(sessionID, func(sess *storage.Session) error {
		info = sess.Info(s.store.TTL())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Upload extracts one document and stores its sealed text in the session.
// A document with the same file name replaces the earlier one. doc.Data is
// zeroed before Upload returns.
func (s *Service) Upload(ctx context.Context, sessionID string, doc domain.UploadedDocument) (*domain.DocumentInfo, error) {
	defer storage.ZeroBytes(doc.Data)
	start := time.Now()
	doc.FileName = cleanFileName(doc.FileName)

	entry := audit.Entry{SessionID: sessionID, Action: audit.ActionUpload}
	var info domain.DocumentInfo

	err := s.store.With(sessionID, func(sess *storage.Session) error {
		stageStart := time.Now()
		extracted, err := s.ingestor.Ingest(ctx, doc)
		s.metrics.RecordStage(StageExtract, codeOf(err), time.Since(stageStart))
		if err != nil {
			return err
		}
		entry.Format = string(extracted.Format)

		text := []byte(extracted.Text)
		stored, replaced, err := sess.AddDocument(domain.DocumentInfo{
			FileName:    doc.FileName,
			Format:      extracted.Format,
			SourceLabel: prompt.SourceLabel(doc.FileName, extracted.Format),
			Pages:       extracted.Pages,
			Characters:  utf8.RuneCountInString(extracted.Text),
			UploadedAt:  s.now().UTC(),
		}, text)
		if err != nil {
			return err
		}
		info = stored
		entry.Documents = len(sess.Documents())

		s.log.Info().
			Str("session_id", sessionID).
			Str("document_id", stored.ID).
			Str("format", string(stored.Format)).
			Int("characters", stored.Characters).
			Bool("replaced", replaced).
			Msg("document stored")
		return nil
	})

	s.record(ctx, entry, start, err)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// RemoveDocument wipes one document from the session
func (s *Service) RemoveDocument(ctx context.Context, sessionID, documentID string) error {
	start := time.Now()
	entry := audit.Entry{SessionID: sessionID, Action: audit.ActionRemoveDocument}

	err := s.store.With(sessionID, func(sess *storage.Session) error {
		if err := sess.RemoveDocument(documentID); err != nil {
			return err
		}
		entry.Documents = len(sess.Documents())
		return nil
	})

	s.record(ctx, entry, start, err)
	return err
}

// GenerateProfile builds the prompt from every stored document, calls the
// model and keeps the parsed profile in the session.
func (s *Service) GenerateProfile(ctx context.Context, sessionID string, person map[string]string) (*domain.GeneratedProfile, error) {
	start := time.Now()
	entry := audit.Entry{SessionID: sessionID, Action: audit.ActionGenerate}
	var profile *domain.GeneratedProfile

	err := s.store.With(sessionID, func(sess *storage.Session) error {
		if person != nil {
			sess.SetPerson(person)
		}

		req, err := s.buildRequest(sess, &entry, func(docs []domain.SourceDocument) (*domain.ProfileRequest, error) {
			return s.builder.BuildProfile(docs, sess.Person())
		})
		if err != nil {
			return err
		}

		stageStart := time.Now()
		profile, err = s.generator.Generate(ctx, req)
		s.metrics.RecordStage(StageGenerate, codeOf(err), time.Since(stageStart))
		if err != nil {
			return err
		}

		sess.SetProfile(profile)
		entry.Sections = len(profile.Sections)
		return nil
	})

	s.record(ctx, entry, start, err)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Profile returns the last generated profile of the session
func (s *Service) Profile(sessionID string) (*domain.GeneratedProfile, error) {
	var profile *domain.GeneratedProfile
	err := s.store.View(sessionID, func(sess *storage.Session) error {
		profile = sess.Profile()
		if profile == nil {
			return errors.NotFound("profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Export renders the current profile as a deck. The deck is not retained.
func (s *Service) Export(ctx context.Context, sessionID string, format domain.ExportFormat) (*domain.ExportedDeck, error) {
	start := time.Now()
	entry := audit.Entry{SessionID: sessionID, Action: audit.ActionExport, Format: string(format)}
	var deck *domain.ExportedDeck

	err := s.store.With(sessionID, func(sess *storage.Session) error {
		profile := sess.Profile()
		if profile != nil {
			entry.Sections = len(profile.Sections)
		}

		stageStart := time.Now()
		var err error
		deck, err = s.exporters.Export(ctx, profile, format)
		s.metrics.RecordStage(StageExport, codeOf(err), time.Since(stageStart))
		return err
	})

	s.record(ctx, entry, start, err)
	if err != nil {
		return nil, err
	}
	return deck, nil
}

// Ask answers a free-form question over the stored documents
func (s *Service) Ask(ctx context.Context, sessionID, question string) (*domain.Answer, error) {
	start := time.Now()
	entry := audit.Entry{SessionID: sessionID, Action: audit.ActionAsk}
	var answer *domain.Answer

	err := s.store.With(sessionID, func(sess *storage.Session) error {
		req, err := s.buildRequest(sess, &entry, func(docs []domain.SourceDocument) (*domain.ProfileRequest, error) {
			return s.builder.BuildQuestion(docs, question)
		})
		if err != nil {
			return err
		}

		stageStart := time.Now()
		completion, err := s.generator.Answer(ctx, req)
		s.metrics.RecordStage(StageAnswer, codeOf(err), time.Since(stageStart))
		if err != nil {
			return err
		}

		answer = &domain.Answer{
			Question:   strings.TrimSpace(question),
			Answer:     completion.Text,
			Model:      completion.Model,
			AnsweredAt: s.now().UTC(),
		}
		return nil
	})

	s.record(ctx, entry, start, err)
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// Wait blocks until every pending audit entry has been written
func (s *Service) Wait() {
	s.audits.Wait()
}

// buildRequest opens the sealed documents, runs build and zeroes the opened
// plaintext again.
func (s *Service) buildRequest(
	sess *storage.Session,
	entry *audit.Entry,
	build func([]domain.SourceDocument) (*domain.ProfileRequest, error),
) (*domain.ProfileRequest, error) {
	docs, release, err := sess.OpenDocuments()
	if err != nil {
		return nil, err
	}
	defer release()
	entry.Documents = len(docs)

	stageStart := time.Now()
	req, err := build(docs)
	s.metrics.RecordStage(StagePrompt, codeOf(err), time.Since(stageStart))
	return req, err
}

// record writes an audit entry in the background. Failures are logged only.
func (s *Service) record(ctx context.Context, e audit.Entry, start time.Time, err error) {
	e.DurationMs = time.Since(start).Milliseconds()
	e.CreatedAt = s.now().UTC()
	if err != nil {
		e.ErrorCode = errors.Code(err)
	}

	s.audits.Add(1)
	go func() {
		defer s.audits.Done()

		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()

		if err := s.recorder.Record(actx, e); err != nil {
			s.log.Warn().Err(err).Str("action", e.Action).Msg("failed to write audit entry")
		}
	}()
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return errors.Code(err)
}

// cleanFileName keeps only the base name of an uploaded file
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}
