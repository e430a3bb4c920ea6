package episode

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Episode is the business record a broadcast session hangs off.
// Persistence lives with an external collaborator; this package only
// defines the boundary and an in-memory implementation for single-node
// runs and tests.
type Episode struct {
	ID         string
	Title      string
	LineNumber string
	OnAirRoom  string
	LobbyRoom  string
	Live       bool
	StartedAt  time.Time
}

var ErrEpisodeNotFound = errors.New("episode not found")

type Store interface {
	// FindLive returns the live episode answering the given phone line.
	FindLive(ctx context.Context, lineNumber string) (*Episode, error)
	Get(ctx context.Context, id string) (*Episode, error)
	Put(ctx context.Context, ep *Episode) error
	SetLive(ctx context.Context, id string, live bool) error
}

type memStore struct {
	lock     sync.RWMutex
	episodes map[string]*Episode
}

func NewMemStore() Store {
	return &memStore{episodes: make(map[string]*Episode)}
}

func (s *memStore) FindLive(ctx context.Context, lineNumber string) (*Episode, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, ep := range s.episodes {
		if ep.Live && ep.LineNumber == lineNumber {
			copied := *ep
			return &copied, nil
		}
	}
	return nil, ErrEpisodeNotFound
}

func (s *memStore) Get(ctx context.Context, id string) (*Episode, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ep, ok := s.episodes[id]
	if !ok {
		return nil, ErrEpisodeNotFound
	}
	copied := *ep
	return &copied, nil
}

func (s *memStore) Put(ctx context.Context, ep *Episode) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	copied := *ep
	s.episodes[ep.ID] = &copied
	return nil
}

func (s *memStore) SetLive(ctx context.Context, id string, live bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	ep, ok := s.episodes[id]
	if !ok {
		return ErrEpisodeNotFound
	}
	ep.Live = live
	if live {
		ep.StartedAt = time.Now()
	}
	return nil
}
