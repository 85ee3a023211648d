package forum

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campuskeep/campuskeep/pkg/audit"
	"github.com/campuskeep/campuskeep/pkg/policy"
)

// Guard is the moderation layer over forum content: a thin composition of
// the policy engine and the store. Every mutation re-checks policy at
// mutation time; CanDelete is advisory only.
type Guard struct {
	engine   *policy.Engine
	store    Store
	recorder audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewGuard wires a guard. A nil recorder disables audit.
func NewGuard(engine *policy.Engine, store Store, recorder audit.Recorder, logger *slog.Logger) *Guard {
	if recorder == nil {
		recorder = audit.NewNop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		engine:   engine,
		store:    store,
		recorder: recorder,
		logger:   logger.With("component", "forum"),
		now:      time.Now,
	}
}

// CanDelete reports whether the subject could delete the resource right
// now. UI-facing collaborators use it to pre-filter affordances; the result
// can go stale between render and click, so the authoritative check is the
// one DeletePost/DeleteComment perform.
func (g *Guard) CanDelete(subject policy.Subject, resource policy.Resource) bool {
	return g.engine.Decide(subject, policy.ActionDelete, resource).Allowed
}

// CreatePost authors a new post owned by the subject.
func (g *Guard) CreatePost(ctx context.Context, subject policy.Subject, body string) (*Post, error) {
	decision := g.engine.Decide(subject, policy.ActionCreate, policy.Resource{
		Kind:    policy.KindForumPost,
		OwnerID: subject.ID,
	})
	if err := decision.Err(); err != nil {
		return nil, err
	}
	if err := validateBody(body); err != nil {
		return nil, err
	}

	post := &Post{
		ID:        uuid.New().String(),
		AuthorID:  subject.ID,
		Body:      body,
		CreatedAt: g.now().UTC(),
	}
	if err := g.store.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	g.record(ctx, subject.ID, audit.EventMutation, "post.create", "post/"+post.ID, "created")
	return post, nil
}

// GetPost returns a post, with its comments, to a subject allowed to read it.
func (g *Guard) GetPost(ctx context.Context, subject policy.Subject, id string) (*Post, []*Comment, error) {
	post, err := g.store.GetPost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	decision := g.engine.Decide(subject, policy.ActionRead, postResource(post))
	if err := decision.Err(); err != nil {
		return nil, nil, err
	}
	comments, err := g.store.ListComments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return post, comments, nil
}

// DeletePost removes a post and its comments. Author or admin only.
func (g *Guard) DeletePost(ctx context.Context, subject policy.Subject, id string) error {
	post, err := g.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	decision := g.engine.Decide(subject, policy.ActionDelete, postResource(post))
	if err := decision.Err(); err != nil {
		g.record(ctx, subject.ID, audit.EventDecision, "post.delete", "post/"+id, "deny")
		return err
	}
	if err := g.store.DeletePost(ctx, id); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "post deleted", "post_id", id, "actor_id", subject.ID)
	g.record(ctx, subject.ID, audit.EventMutation, "post.delete", "post/"+id, "deleted")
	return nil
}

// CreateComment authors a comment on an existing post.
func (g *Guard) CreateComment(ctx context.Context, subject policy.Subject, postID, body string) (*Comment, error) {
	if _, err := g.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	decision := g.engine.Decide(subject, policy.ActionCreate, policy.Resource{
		Kind:    policy.KindForumComment,
		OwnerID: subject.ID,
	})
	if err := decision.Err(); err != nil {
		return nil, err
	}
	if err := validateBody(body); err != nil {
		return nil, err
	}

	comment := &Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  subject.ID,
		Body:      body,
		CreatedAt: g.now().UTC(),
	}
	if err := g.store.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	g.record(ctx, subject.ID, audit.EventMutation, "comment.create", "comment/"+comment.ID, "created")
	return comment, nil
}

// DeleteComment removes a single comment. Author or admin only.
func (g *Guard) DeleteComment(ctx context.Context, subject policy.Subject, id string) error {
	comment, err := g.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	decision := g.engine.Decide(subject, policy.ActionDelete, policy.Resource{
		Kind:    policy.KindForumComment,
		OwnerID: comment.AuthorID,
	})
	if err := decision.Err(); err != nil {
		g.record(ctx, subject.ID, audit.EventDecision, "comment.delete", "comment/"+id, "deny")
		return err
	}
	if err := g.store.DeleteComment(ctx, id); err != nil {
		return err
	}
	g.record(ctx, subject.ID, audit.EventMutation, "comment.delete", "comment/"+id, "deleted")
	return nil
}

func (g *Guard) record(ctx context.Context, actorID string, t audit.EventType, action, resource, outcome string) {
	if err := g.recorder.Record(ctx, actorID, t, action, resource, outcome, nil); err != nil {
		g.logger.ErrorContext(ctx, "audit record failed", "error", err)
	}
}

func postResource(p *Post) policy.Resource {
	return policy.Resource{Kind: policy.KindForumPost, OwnerID: p.AuthorID}
}
