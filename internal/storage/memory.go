package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"schedbot/internal/post"
)

type memStore struct {
	mu         sync.RWMutex
	posts      map[string]post.Post
	channels   map[string]post.Channel
	users      map[string]post.User
	deliveries []post.Delivery
}

// NewMemory returns an empty process-local store.
func NewMemory() Store {
	return &memStore{
		posts:    map[string]post.Post{},
		channels: map[string]post.Channel{},
		users:    map[string]post.User{},
	}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) DuePosts(ctx context.Context, now time.Time) ([]post.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]post.Post, 0, 8)
	for _, p := range s.posts {
		if p.Due(now) {
			out = append(out, clonePost(p))
		}
	}
	sortPosts(out)
	return out, nil
}

func (s *memStore) PendingPosts(ctx context.Context) ([]post.Post, error) {
	return s.ListPosts(ctx, post.Filter{Pending: true})
}

func (s *memStore) GetChannel(ctx context.Context, id string) (*post.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) GetChannelByChatID(ctx context.Context, chatID string) (*post.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.channels))
	for id, c := range s.channels {
		if c.ChatID == chatID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)
	c := s.channels[ids[0]]
	return &c, nil
}

func (s *memStore) GetUser(ctx context.Context, ownerID string) (*post.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[ownerID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) UpdatePost(ctx context.Context, id string, u post.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return post.ErrNotFound
	}
	if u.PublishTime != nil {
		p.PublishTime = *u.PublishTime
	}
	if u.Published != nil {
		p.Published = *u.Published
	}
	if u.Notified != nil {
		p.Notified = *u.Notified
	}
	s.posts[id] = p
	return nil
}

func (s *memStore) MarkPublished(ctx context.Context, id string) error {
	return s.UpdatePost(ctx, id, post.Update{Published: post.Bool(true)})
}

func (s *memStore) RecordDelivery(ctx context.Context, d post.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.MessageIDs = append([]int(nil), d.MessageIDs...)
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *memStore) Deliveries(ctx context.Context, postID string, limit int) ([]post.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]post.Delivery, 0, 4)
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		d := s.deliveries[i]
		if postID != "" && d.PostID != postID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) PruneDeliveries(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.deliveries[:0]
	var n int64
	for _, d := range s.deliveries {
		if d.At.Before(before) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	s.deliveries = kept
	return n, nil
}

func (s *memStore) SavePost(ctx context.Context, p post.Post) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrNoID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *memStore) GetPost(ctx context.Context, id string) (*post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	cp := clonePost(p)
	return &cp, nil
}

func (s *memStore) ListPosts(ctx context.Context, f post.Filter) ([]post.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]post.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if matches(p, f) {
			out = append(out, clonePost(p))
		}
	}
	sortPosts(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return post.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *memStore) SaveChannel(ctx context.Context, c post.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = c
	return nil
}

func (s *memStore) ListChannels(ctx context.Context) ([]post.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]post.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SaveUser(ctx context.Context, u post.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func matches(p post.Post, f post.Filter) bool {
	if f.OwnerID != "" && p.OwnerID != f.OwnerID {
		return false
	}
	if f.ProjectID != "" && p.ProjectID != f.ProjectID {
		return false
	}
	if f.Pending && !p.Pending() {
		return false
	}
	if f.Drafts && !p.Draft {
		return false
	}
	return true
}

func clonePost(p post.Post) post.Post {
	if p.Media != nil {
		m := *p.Media
		p.Media = &m
	}
	if p.Buttons != nil {
		p.Buttons = append(post.Buttons(nil), p.Buttons...)
	}
	return p
}

// sortPosts orders by publish time, unparseable times last, then by id.
func sortPosts(ps []post.Post) {
	sort.SliceStable(ps, func(i, j int) bool {
		ti, ei := ps[i].ScheduledAt()
		tj, ej := ps[j].ScheduledAt()
		switch {
		case ei != nil && ej != nil:
			return ps[i].ID < ps[j].ID
		case ei != nil:
			return false
		case ej != nil:
			return true
		case !ti.Equal(tj):
			return ti.Before(tj)
		}
		return ps[i].ID < ps[j].ID
	})
}
