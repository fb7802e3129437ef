package gemini

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"github.com/Protocol-Lattice/gemini-mcp/src/cache"
	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

const (
	DefaultSessionTTL  = time.Hour
	DefaultMaxSessions = 1000
)

// Session is one live conversation. Its model is fixed at creation; turns
// on the same session are serialised by the session lock.
type Session struct {
	id        string
	model     string
	createdAt time.Time
	defaults  models.ModelParams
	chat      models.ChatSession

	turn sync.Mutex
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Model() string        { return s.model }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// History returns a snapshot of the provider-side conversation.
func (s *Session) History() []*genai.Content { return s.chat.History() }

// RegistryConfig tunes session retention.
type RegistryConfig struct {
	// TTL is the idle time after which a session is dropped. Zero selects
	// DefaultSessionTTL, a negative value disables expiry.
	TTL time.Duration
	// MaxSessions bounds the registry; the least recently used session is
	// evicted beyond it. Zero selects DefaultMaxSessions, negative disables.
	MaxSessions int
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Registry maps session ids to live sessions. It is safe for concurrent use.
type Registry struct {
	starter  models.ChatStarter
	sessions *cache.LRUCache[string, *Session]
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewRegistry(starter models.ChatStarter, cfg RegistryConfig) *Registry {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	capacity := cfg.MaxSessions
	if capacity == 0 {
		capacity = DefaultMaxSessions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	r := &Registry{
		starter: starter,
		ttl:     ttl,
		logger:  logger,
		now:     now,
		newID:   uuid.NewString,
	}
	r.sessions = cache.NewLRUCache[string, *Session](capacity, ttl,
		cache.WithClock[string, *Session](now),
		cache.WithEvictFunc(func(id string, s *Session) {
			r.logger.Info("chat session evicted", "session_id", id, "model", s.model)
		}),
	)
	return r
}

// Create starts a provider chat seeded with history and registers it under
// a fresh id. defaults.Model is overwritten with model.
func (r *Registry) Create(model string, history []*genai.Content, defaults models.ModelParams) (*Session, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, &ConfigurationError{Message: "no model given for chat session and no default model configured"}
	}
	defaults.Model = model

	s := &Session{
		id:        r.newID(),
		model:     model,
		createdAt: r.now(),
		defaults:  defaults,
		chat:      r.starter.StartChat(defaults, history),
	}
	r.sessions.Set(s.id, s)
	r.logger.Debug("chat session created", "session_id", s.id, "model", model, "history_turns", len(history))
	return s, nil
}

// Lookup returns the live session for id or a NotFoundError.
func (r *Registry) Lookup(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, &NotFoundError{Kind: "session", ID: id}
	}
	return s, nil
}

// Remove ends a session.
func (r *Registry) Remove(id string) error {
	id = strings.TrimSpace(id)
	if !r.sessions.Delete(id) {
		return &NotFoundError{Kind: "session", ID: id}
	}
	r.logger.Debug("chat session removed", "session_id", id)
	return nil
}

// Sweep drops idle sessions and reports how many went.
func (r *Registry) Sweep() int { return r.sessions.Sweep() }

// Len counts registered sessions, including idle ones not yet swept.
func (r *Registry) Len() int { return r.sessions.Len() }

// IDs lists live session ids, most recently used first.
func (r *Registry) IDs() []string { return r.sessions.Keys() }

// Run sweeps idle sessions every half TTL until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	if r.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("swept idle chat sessions", "count", n, "remaining", r.Len())
			}
		}
	}
}
