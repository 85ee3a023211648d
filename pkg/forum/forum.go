// Package forum holds the discussion records attached to lost-and-found
// items and the moderation guard over them.
package forum

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Post is a top-level discussion entry.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment references exactly one post. Deleting a post removes its comments
// in the same owner/admin-gated action; comment ownership is not re-checked
// individually.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationError reports malformed input the caller must correct.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return &ValidationError{Field: "body", Msg: "required"}
	}
	return nil
}

// Store is the persistence contract for forum content. DeletePost removes
// the post and all its comments; deletion is terminal, no soft-delete state
// is modeled.
type Store interface {
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	DeletePost(ctx context.Context, id string) error
	CreateComment(ctx context.Context, c *Comment) error
	GetComment(ctx context.Context, id string) (*Comment, error)
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, postID string) ([]*Comment, error)
}
