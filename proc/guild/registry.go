package guild

import (
	"slices"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Registry owns one State per guild, created on first use.
type Registry struct {
	mu     sync.Mutex
	states map[snowflake.ID]*State

	defaultKeywords []string
}

// NewRegistry seeds every new State with the given skip keywords.
func NewRegistry(defaultKeywords []string) *Registry {
	return &Registry{
		states:          make(map[snowflake.ID]*State),
		defaultKeywords: slices.Clone(defaultKeywords),
	}
}

// Get returns the state for id, creating it if needed.
func (r *Registry) Get(id snowflake.ID) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.states[id]; ok {
		return s
	}
	s := newState(id)
	if len(r.defaultKeywords) > 0 {
		s.SetSkipKeywords(r.defaultKeywords)
	}
	r.states[id] = s
	return s
}

// Lookup returns the state for id without creating one.
func (r *Registry) Lookup(id snowflake.ID) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Snapshots returns a snapshot of every known guild ordered by ID.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	states := make([]*State, 0, len(r.states))
	for _, s := range r.states {
		states = append(states, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(states))
	for _, s := range states {
		out = append(out, s.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		switch {
		case a.GuildID < b.GuildID:
			return -1
		case a.GuildID > b.GuildID:
			return 1
		}
		return 0
	})
	return out
}
