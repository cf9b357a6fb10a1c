package session

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"pdfreader/internal/index"
	"pdfreader/internal/models"
)

// Session is the state owned by one logical user interaction: the
// active document, its vector index, the bounded chat history and the
// rate-limit counters. A session is never shared across users, so no
// locking is needed.
type Session struct {
	ID string

	DocumentID string
	Filename   string
	PDFPath    string
	PageCount  int
	WorkDir    string

	Index *index.Index

	History    []models.ChatTurn
	AnswerPage int

	QueryCount  int
	LastQueryAt time.Time
}

// AppendTurn appends a completed exchange, evicting the oldest turns
// so that len(History) never exceeds max.
func (s *Session) AppendTurn(turn models.ChatTurn, max int) {
	s.History = append(s.History, turn)
	if len(s.History) > max {
		s.History = s.History[len(s.History)-max:]
	}
}

// RecordQuery counts an accepted query. Called exactly once per
// accepted query, before generation is attempted, so a query that
// later fails generation still counts against the quota.
func (s *Session) RecordQuery(now time.Time) {
	s.QueryCount++
	s.LastQueryAt = now
}

// ResetDocument installs a newly processed document and clears the
// conversation tied to the previous one. Rate-limit counters are
// session-scoped and survive document replacement.
func (s *Session) ResetDocument(docID, filename, pdfPath, workDir string, pageCount int, ix *index.Index) {
	s.DocumentID = docID
	s.Filename = filename
	s.PDFPath = pdfPath
	s.WorkDir = workDir
	s.PageCount = pageCount
	s.Index = ix
	s.History = nil
	s.AnswerPage = 0
}

// Manager stores sessions by ID with an idle TTL.
type Manager struct {
	cache *gocache.Cache
}

// NewManager creates a session store. onEvict, if non-nil, runs when a
// session expires or is replaced, and is the hook for discarding the
// session's temp artifacts.
func NewManager(ttl time.Duration, onEvict func(*Session)) *Manager {
	c := gocache.New(ttl, ttl/2)
	if onEvict != nil {
		c.OnEvicted(func(_ string, v interface{}) {
			if s, ok := v.(*Session); ok {
				onEvict(s)
			}
		})
	}
	return &Manager{cache: c}
}

// Create registers a fresh session.
func (m *Manager) Create() *Session {
	s := &Session{ID: uuid.NewString()}
	m.cache.Set(s.ID, s, gocache.DefaultExpiration)
	return s
}

// Get returns the session with the given ID, if it is still alive.
func (m *Manager) Get(id string) (*Session, bool) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// Touch refreshes the session's idle TTL.
func (m *Manager) Touch(s *Session) {
	m.cache.Set(s.ID, s, gocache.DefaultExpiration)
}
