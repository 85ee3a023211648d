package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/campuskeep/campuskeep/pkg/claims"
	"github.com/campuskeep/campuskeep/pkg/forum"
)

// Postgres implements claims.Store and forum.Store over database/sql.
// The claim CAS is a conditional UPDATE on the expected status, so two
// simultaneous decisions resolve to one winner and one ErrConflict.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a store over an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Init creates the tables if absent.
func (s *Postgres) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		claimant_id TEXT NOT NULL,
		proof_description TEXT NOT NULL,
		status TEXT NOT NULL,
		admin_notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		decided_by TEXT NOT NULL DEFAULT '',
		decided_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_claims_status ON claims (status);
	CREATE TABLE IF NOT EXISTS forum_posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS forum_comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES forum_posts(id) ON DELETE CASCADE,
		author_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_forum_comments_post ON forum_comments (post_id);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	return nil
}

const claimColumns = "id, item_id, claimant_id, proof_description, status, admin_notes, created_at, decided_by, decided_at"

func (s *Postgres) CreateClaim(ctx context.Context, c *claims.Claim) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (id, item_id, claimant_id, proof_description, status, admin_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ItemID, c.ClaimantID, c.ProofDescription, string(c.Status), c.AdminNotes, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

func (s *Postgres) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE id = $1", id)
	return scanClaim(row)
}

// CASUpdateClaim performs the conditional write keyed on the expected
// status. Zero rows updated means either the claim vanished or a concurrent
// decision already landed; a re-read distinguishes the two.
func (s *Postgres) CASUpdateClaim(ctx context.Context, id string, expected claims.Status, patch claims.Patch) (*claims.Claim, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE claims
		 SET status = $1,
		     decided_by = $2,
		     decided_at = $3,
		     admin_notes = CASE WHEN $4 <> '' THEN $4 ELSE admin_notes END
		 WHERE id = $5 AND status = $6
		 RETURNING `+claimColumns,
		string(patch.Status), patch.DecidedBy, patch.DecidedAt, patch.AdminNotes, id, string(expected))

	claim, err := scanClaim(row)
	if err == nil {
		return claim, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// CAS missed: distinguish a vanished claim from a lost race.
	var status string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM claims WHERE id = $1", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cas re-read: %w", err)
	}
	return nil, ErrConflict
}

func (s *Postgres) ListClaims(ctx context.Context, status claims.Status) ([]*claims.Claim, error) {
	query := "SELECT " + claimColumns + " FROM claims"
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*claims.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*claims.Claim, error) {
	var c claims.Claim
	var status string
	var decidedAt sql.NullTime
	err := row.Scan(&c.ID, &c.ItemID, &c.ClaimantID, &c.ProofDescription, &status, &c.AdminNotes, &c.CreatedAt, &c.DecidedBy, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	c.Status = claims.Status(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		c.DecidedAt = &t
	}
	return &c, nil
}

func (s *Postgres) CreatePost(ctx context.Context, p *forum.Post) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forum_posts (id, author_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.AuthorID, p.Body, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *Postgres) GetPost(ctx context.Context, id string) (*forum.Post, error) {
	var p forum.Post
	err := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, body, created_at FROM forum_posts WHERE id = $1`, id).
		Scan(&p.ID, &p.AuthorID, &p.Body, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

// DeletePost removes the post; comments go with it via ON DELETE CASCADE.
func (s *Postgres) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forum_posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateComment(ctx context.Context, c *forum.Comment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forum_comments (id, post_id, author_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PostID, c.AuthorID, c.Body, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *Postgres) GetComment(ctx context.Context, id string) (*forum.Comment, error) {
	var c forum.Comment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, author_id, body, created_at FROM forum_comments WHERE id = $1`, id).
		Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &c, nil
}

func (s *Postgres) DeleteComment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forum_comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListComments(ctx context.Context, postID string) ([]*forum.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, author_id, body, created_at FROM forum_comments WHERE post_id = $1 ORDER BY created_at`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*forum.Comment
	for rows.Next() {
		var c forum.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
