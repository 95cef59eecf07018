package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/JakeFAU/analytica/internal/social"
)

// PostStore keeps labeled posts keyed by their natural key.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]social.LabeledPost
}

// NewPostStore creates an empty PostStore.
func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[string]social.LabeledPost)}
}

// Upsert stores post under (platform id, timestamp). Fields of a later write
// win; labels for dimensions the later write did not produce are kept, and a
// kept label takes the dimension off the unavailable list.
func (s *PostStore) Upsert(_ context.Context, post social.LabeledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := post.Key()
	labels := make(map[string]string, len(post.Labels))
	if prev, ok := s.posts[key]; ok {
		maps.Copy(labels, prev.Labels)
	}
	maps.Copy(labels, post.Labels)
	post.Labels = labels
	unavailable := make([]string, 0, len(post.Unavailable))
	for _, dim := range post.Unavailable {
		if _, labeled := labels[dim]; !labeled {
			unavailable = append(unavailable, dim)
		}
	}
	post.Unavailable = unavailable
	s.posts[key] = post
	return nil
}

// Get returns the post stored under key.
func (s *PostStore) Get(key string) (social.LabeledPost, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[key]
	return p, ok
}

// Len reports how many distinct posts are stored.
func (s *PostStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// All returns stored posts ordered by key.
func (s *PostStore) All() []social.LabeledPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]social.LabeledPost, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
