package conversation

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store keeps conversation frames keyed by id. Writes for one id are last
// write wins; concurrent turns on the same id may interleave.
type Store interface {
	// GetOrCreate returns the frame for id. Unknown or empty ids get a fresh
	// frame, stored under id when one was supplied and a new id otherwise.
	GetOrCreate(ctx context.Context, id string) (string, *State, error)
	Save(ctx context.Context, id string, state *State) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*State)}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (string, *State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	if id != "" {
		if st, ok := s.sessions[id]; ok {
			return id, st.Clone(), nil
		}
	} else {
		id = newConversationID()
	}
	st := NewState()
	s.sessions[id] = st.Clone()
	return id, st, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = state.Clone()
	return nil
}

// Len reports how many conversations are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newConversationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
