package speaker

import (
	"fmt"
	"strconv"
	"sync"
)

// Speaker is one session-wide identity and the embeddings attributed to it.
type Speaker struct {
	ID      string
	History []Embedding
}

// Centroid returns the mean of the speaker's embedding history.
func (s *Speaker) Centroid() Embedding { return Mean(s.History) }

// Resolution is the outcome of Registry.Resolve.
type Resolution struct {
	ID      string
	Score   float64 // similarity to the matched centroid; 0 for a new speaker on an empty registry
	Created bool
}

// Registry is the append-only store of speakers known in one session.
// Ids are S1, S2, ... in creation order and are never reused or revoked.
//
// It is safe for concurrent use, but resolution order determines id
// assignment, so callers feed it in timeline order.
type Registry struct {
	mu       sync.RWMutex
	speakers []*Speaker
	byID     map[string]*Speaker
	dim      int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Speaker)}
}

// Len returns the number of known speakers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.speakers)
}

// Get returns a copy of the speaker with the given id.
func (r *Registry) Get(id string) (Speaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Speaker{}, false
	}
	return copySpeaker(s), true
}

// Speakers returns copies of all speakers in creation order.
func (r *Registry) Speakers() []Speaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Speaker, len(r.speakers))
	for i, s := range r.speakers {
		out[i] = copySpeaker(s)
	}
	return out
}

// BestMatch returns the id of the speaker whose centroid is most similar to
// e, or "" when the registry is empty.
func (r *Registry) BestMatch(e Embedding) (string, float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bestMatch(e)
}

func (r *Registry) bestMatch(e Embedding) (string, float64, error) {
	centroids := make([]Embedding, len(r.speakers))
	for i, s := range r.speakers {
		centroids[i] = s.Centroid()
	}
	i, score, err := Nearest(centroids, e)
	if err != nil || i < 0 {
		return "", 0, err
	}
	return r.speakers[i].ID, score, nil
}

// Resolve assigns e to the most similar known speaker when the similarity is
// at least threshold, appending e to that speaker's history. Otherwise it
// creates a new speaker seeded with e. The registry keeps its own copy of e.
func (r *Registry) Resolve(e Embedding, threshold float64) (Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dim != 0 && len(e) != r.dim {
		return Resolution{}, fmt.Errorf("%w: registry holds %d-dim embeddings, got %d", ErrDimensionMismatch, r.dim, len(e))
	}
	id, score, err := r.bestMatch(e)
	if err != nil {
		return Resolution{}, err
	}
	if id != "" && score >= threshold {
		s := r.byID[id]
		s.History = append(s.History, e.Clone())
		return Resolution{ID: id, Score: score}, nil
	}
	s := r.add(e.Clone())
	return Resolution{ID: s.ID, Score: score, Created: true}, nil
}

func (r *Registry) add(e Embedding) *Speaker {
	s := &Speaker{
		ID:      "S" + strconv.Itoa(len(r.speakers)+1),
		History: []Embedding{e},
	}
	r.speakers = append(r.speakers, s)
	r.byID[s.ID] = s
	r.dim = len(e)
	return s
}

func copySpeaker(s *Speaker) Speaker {
	h := make([]Embedding, len(s.History))
	for i, e := range s.History {
		h[i] = e.Clone()
	}
	return Speaker{ID: s.ID, History: h}
}
