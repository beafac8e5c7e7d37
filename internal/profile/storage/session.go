package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Session holds the documents, person data and profile of one user session.
// All methods except ID and the time accessors must be called through
// Store.With or Store.View.
type Session struct {
	id           string
	createdAt    time.Time
	lastActivity atomic.Int64
	maxDocuments int

	mu        sync.Mutex
	ended     bool
	key       []byte
	aead      cipher.AEAD
	documents []*document
	person    map[string]string
	profile   *domain.GeneratedProfile
}

type document struct {
	info   domain.DocumentInfo
	nonce  []byte
	sealed []byte
}

func newSession(id string, now time.Time, maxDocuments int) (*Session, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		ZeroBytes(key)
		return nil, fmt.Errorf("init session cipher: %w", err)
	}

	s := &Session{
		id:           id,
		createdAt:    now,
		maxDocuments: maxDocuments,
		key:          key,
		aead:         aead,
		person:       make(map[string]string),
	}
	s.touch(now)
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch(t time.Time) {
	s.lastActivity.Store(t.UnixNano())
}

// AddDocument seals text and stores it under info. A document with the same
// file name is replaced. text is zeroed before returning.
func (s *Session) AddDocument(info domain.DocumentInfo, text []byte) (domain.DocumentInfo, bool, error) {
	defer ZeroBytes(text)

	replaceAt := -1
	for i, d := range s.documents {
		if d.info.FileName == info.FileName {
			replaceAt = i
			break
		}
	}
	if replaceAt < 0 && s.maxDocuments > 0 && len(s.documents) >= s.maxDocuments {
		return domain.DocumentInfo{}, false, errors.BadRequest(
			fmt.Sprintf("a session holds at most %d documents", s.maxDocuments)).
			WithDetails(map[string]string{"max_documents": strconv.Itoa(s.maxDocuments)})
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return domain.DocumentInfo{}, false, fmt.Errorf("generate nonce: %w", err)
	}

	info.ID = uuid.NewString()
	doc := &document{
		info:   info,
		nonce:  nonce,
		sealed: s.aead.Seal(nil, nonce, text, []byte(info.ID)),
	}

	if replaceAt >= 0 {
		s.documents[replaceAt].wipe()
		s.documents[replaceAt] = doc
		return info, true, nil
	}
	s.documents = append(s.documents, doc)
	return info, false, nil
}

// RemoveDocument wipes and removes one document
func (s *Session) RemoveDocument(id string) error {
	for i, d := range s.documents {
		if d.info.ID == id {
			d.wipe()
			s.documents = append(s.documents[:i], s.documents[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("document")
}

// Documents returns the metadata of every stored document in upload order
func (s *Session) Documents() []domain.DocumentInfo {
	out := make([]domain.DocumentInfo, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d.info)
	}
	return out
}

// OpenDocuments decrypts every document. The returned release func zeroes
// the plaintext buffers and must be called once the text has been used.
func (s *Session) OpenDocuments() ([]domain.SourceDocument, func(), error) {
	buffers := make([][]byte, 0, len(s.documents))
	release := func() {
		for _, b := range buffers {
			ZeroBytes(b)
		}
	}

	docs := make([]domain.SourceDocument, 0, len(s.documents))
	for _, d := range s.documents {
		plain, err := s.aead.Open(nil, d.nonce, d.sealed, []byte(d.info.ID))
		if err != nil {
			release()
			return nil, func() {}, errors.Internal("stored document could not be opened")
		}
		buffers = append(buffers, plain)
		docs = append(docs, domain.SourceDocument{
			FileName: d.info.FileName,
			Format:   d.info.Format,
			Text:     string(plain),
		})
	}
	return docs, release, nil
}

// SetPerson replaces the person details used for the profile
func (s *Session) SetPerson(person map[string]string) {
	clear(s.person)
	maps.Copy(s.person, person)
}

// Person returns a copy of the person details
func (s *Session) Person() map[string]string {
	return maps.Clone(s.person)
}

func (s *Session) SetProfile(p *domain.GeneratedProfile) {
	s.profile = p
}

// Profile returns the last generated profile, or nil
func (s *Session) Profile() *domain.GeneratedProfile {
	return s.profile
}

// Info summarizes the session without exposing content
func (s *Session) Info(ttl time.Duration) domain.SessionInfo {
	last := s.LastActivity()
	return domain.SessionInfo{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		LastActivity: last,
		ExpiresAt:    last.Add(ttl),
		Documents:    s.Documents(),
		HasProfile:   s.profile != nil,
	}
}

// wipe zeroes every buffer the session owns. Caller holds s.mu.
func (s *Session) wipe() {
	for _, d := range s.documents {
		d.wipe()
	}
	s.documents = nil
	ZeroBytes(s.key)
	s.key = nil
	s.aead = nil
	clear(s.person)
	s.profile = nil
	s.ended = true
}

func (d *document) wipe() {
	ZeroBytes(d.sealed)
	ZeroBytes(d.nonce)
}
