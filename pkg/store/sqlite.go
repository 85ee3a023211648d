package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campuskeep/campuskeep/pkg/claims"
	"github.com/campuskeep/campuskeep/pkg/forum"
)

// SQLite implements claims.Store and forum.Store for lite mode: a single
// node with no external database. Timestamps are stored as RFC 3339 text so
// scans stay driver-independent.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates the store and runs migrations.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		claimant_id TEXT NOT NULL,
		proof_description TEXT NOT NULL,
		status TEXT NOT NULL,
		admin_notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		decided_by TEXT NOT NULL DEFAULT '',
		decided_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_claims_status ON claims (status);
	CREATE TABLE IF NOT EXISTS forum_posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS forum_comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_forum_comments_post ON forum_comments (post_id);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

func (s *SQLite) CreateClaim(ctx context.Context, c *claims.Claim) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (id, item_id, claimant_id, proof_description, status, admin_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ItemID, c.ClaimantID, c.ProofDescription, string(c.Status), c.AdminNotes, encodeTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

func (s *SQLite) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, item_id, claimant_id, proof_description, status, admin_notes, created_at, decided_by, decided_at
		 FROM claims WHERE id = ?`, id)
	return scanSQLiteClaim(row)
}

func (s *SQLite) CASUpdateClaim(ctx context.Context, id string, expected claims.Status, patch claims.Patch) (*claims.Claim, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE claims
		 SET status = ?,
		     decided_by = ?,
		     decided_at = ?,
		     admin_notes = CASE WHEN ? <> '' THEN ? ELSE admin_notes END
		 WHERE id = ? AND status = ?`,
		string(patch.Status), patch.DecidedBy, encodeTime(patch.DecidedAt),
		patch.AdminNotes, patch.AdminNotes, id, string(expected))
	if err != nil {
		return nil, fmt.Errorf("cas update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cas update: %w", err)
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM claims WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("cas re-read: %w", err)
		}
		return nil, ErrConflict
	}
	return s.GetClaim(ctx, id)
}

func (s *SQLite) ListClaims(ctx context.Context, status claims.Status) ([]*claims.Claim, error) {
	query := `SELECT id, item_id, claimant_id, proof_description, status, admin_notes, created_at, decided_by, decided_at FROM claims`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*claims.Claim
	for rows.Next() {
		c, err := scanSQLiteClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSQLiteClaim(row rowScanner) (*claims.Claim, error) {
	var c claims.Claim
	var status, createdAt, decidedAt string
	err := row.Scan(&c.ID, &c.ItemID, &c.ClaimantID, &c.ProofDescription, &status, &c.AdminNotes, &createdAt, &c.DecidedBy, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	c.Status = claims.Status(status)
	c.CreatedAt, err = decodeTime(createdAt)
	if err != nil {
		return nil, err
	}
	if decidedAt != "" {
		t, err := decodeTime(decidedAt)
		if err != nil {
			return nil, err
		}
		c.DecidedAt = &t
	}
	return &c, nil
}

func (s *SQLite) CreatePost(ctx context.Context, p *forum.Post) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forum_posts (id, author_id, body, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.AuthorID, p.Body, encodeTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *SQLite) GetPost(ctx context.Context, id string) (*forum.Post, error) {
	var p forum.Post
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, body, created_at FROM forum_posts WHERE id = ?`, id).
		Scan(&p.ID, &p.AuthorID, &p.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	p.CreatedAt, err = decodeTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePost removes the post and its comments in one transaction.
func (s *SQLite) DeletePost(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM forum_posts WHERE id = ?`, id)
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
	if _, err := tx.ExecContext(ctx, `DELETE FROM forum_comments WHERE post_id = ?`, id); err != nil {
		return fmt.Errorf("delete post comments: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) CreateComment(ctx context.Context, c *forum.Comment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forum_comments (id, post_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.PostID, c.AuthorID, c.Body, encodeTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *SQLite) GetComment(ctx context.Context, id string) (*forum.Comment, error) {
	var c forum.Comment
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, author_id, body, created_at FROM forum_comments WHERE id = ?`, id).
		Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	c.CreatedAt, err = decodeTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLite) DeleteComment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forum_comments WHERE id = ?`, id)
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

func (s *SQLite) ListComments(ctx context.Context, postID string) ([]*forum.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, author_id, body, created_at FROM forum_comments WHERE post_id = ? ORDER BY created_at`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*forum.Comment
	for rows.Next() {
		var c forum.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt, err = decodeTime(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time %q: %w", s, err)
	}
	return t, nil
}
