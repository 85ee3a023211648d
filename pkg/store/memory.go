package store

import (
	"context"
	"sync"

	"github.com/campuskeep/campuskeep/pkg/claims"
	"github.com/campuskeep/campuskeep/pkg/forum"
)

// Memory implements claims.Store and forum.Store in process. All writes are
// serialized under one mutex, so the claim CAS resolves concurrent deciders
// to exactly one winner.
type Memory struct {
	mu       sync.Mutex
	claims   map[string]claims.Claim
	posts    map[string]forum.Post
	comments map[string]forum.Comment
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		claims:   make(map[string]claims.Claim),
		posts:    make(map[string]forum.Post),
		comments: make(map[string]forum.Comment),
	}
}

func (m *Memory) CreateClaim(ctx context.Context, c *claims.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[c.ID] = *c
	return nil
}

func (m *Memory) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := c
	return &out, nil
}

func (m *Memory) CASUpdateClaim(ctx context.Context, id string, expected claims.Status, patch claims.Patch) (*claims.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != expected {
		return nil, ErrConflict
	}
	c.Status = patch.Status
	c.DecidedBy = patch.DecidedBy
	decidedAt := patch.DecidedAt
	c.DecidedAt = &decidedAt
	if patch.AdminNotes != "" {
		c.AdminNotes = patch.AdminNotes
	}
	m.claims[id] = c
	out := c
	return &out, nil
}

func (m *Memory) ListClaims(ctx context.Context, status claims.Status) ([]*claims.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*claims.Claim
	for _, c := range m.claims {
		if status != "" && c.Status != status {
			continue
		}
		cc := c
		out = append(out, &cc)
	}
	return out, nil
}

func (m *Memory) CreatePost(ctx context.Context, p *forum.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = *p
	return nil
}

func (m *Memory) GetPost(ctx context.Context, id string) (*forum.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := p
	return &out, nil
}

// DeletePost removes the post and all comments referencing it.
func (m *Memory) DeletePost(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
	return nil
}

func (m *Memory) CreateComment(ctx context.Context, c *forum.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.ID] = *c
	return nil
}

func (m *Memory) GetComment(ctx context.Context, id string) (*forum.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := c
	return &out, nil
}

func (m *Memory) DeleteComment(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

func (m *Memory) ListComments(ctx context.Context, postID string) ([]*forum.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*forum.Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			cc := c
			out = append(out, &cc)
		}
	}
	return out, nil
}
