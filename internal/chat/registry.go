package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Factory creates an unloaded session for a deal.
type Factory func(dealID string) (*Session, error)

// Registry keeps the mounted sessions of the bridge, one per deal.
type Registry struct {
	base    context.Context
	factory Factory
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose channels live until base is done.
func NewRegistry(base context.Context, factory Factory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		base:     base,
		factory:  factory,
		logger:   logger.Named("registry"),
		sessions: make(map[string]*Session),
	}
}

// Open mounts the deal: it loads the session and starts its channel. An
// already mounted deal is returned as is.
func (r *Registry) Open(ctx context.Context, dealID string) (*Session, error) {
	if s, ok := r.Get(dealID); ok {
		return s, nil
	}

	s, err := r.factory(dealID)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.sessions[dealID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.sessions[dealID] = s
	r.mu.Unlock()

	s.Start(r.base)
	r.logger.Info("session mounted", zap.String("deal_id", dealID))
	return s, nil
}

func (r *Registry) Get(dealID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[dealID]
	return s, ok
}

// Close unmounts the deal and reports whether it was mounted.
func (r *Registry) Close(dealID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[dealID]
	delete(r.sessions, dealID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	r.logger.Info("session unmounted", zap.String("deal_id", dealID))
	return true
}

// Reconnect refreshes the channel of a mounted deal after it gave up.
func (r *Registry) Reconnect(dealID string) bool {
	s, ok := r.Get(dealID)
	if !ok {
		return false
	}
	s.Reconnect(r.base)
	return true
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// DealIDs lists the mounted deals.
func (r *Registry) DealIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
