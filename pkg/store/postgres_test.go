package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskeep/campuskeep/pkg/claims"
)

const claimCols = "id, item_id, claimant_id, proof_description, status, admin_notes, created_at, decided_by, decided_at"

func claimRow(id string, status claims.Status) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "item_id", "claimant_id", "proof_description", "status", "admin_notes", "created_at", "decided_by", "decided_at"}).
		AddRow(id, "item-1", "u1", "blue lanyard, sticker", string(status), "", time.Now(), "", nil)
}

func TestPostgres_GetClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+claimCols+" FROM claims WHERE id = $1")).
		WithArgs("c1").
		WillReturnRows(claimRow("c1", claims.StatusPending))

	c, err := s.GetClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, claims.StatusPending, c.Status)
	assert.Nil(t, c.DecidedAt)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+claimCols+" FROM claims WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = s.GetClaim(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO claims")).
		WithArgs("c1", "item-1", "u1", "blue lanyard, sticker", "pending", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.CreateClaim(context.Background(), &claims.Claim{
		ID: "c1", ItemID: "item-1", ClaimantID: "u1",
		ProofDescription: "blue lanyard, sticker",
		Status:           claims.StatusPending,
		CreatedAt:        time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CASUpdateClaim_Wins(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)

	decidedAt := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "item_id", "claimant_id", "proof_description", "status", "admin_notes", "created_at", "decided_by", "decided_at"}).
		AddRow("c1", "item-1", "u1", "blue lanyard, sticker", "approved", "checked", time.Now(), "s1", decidedAt)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE claims")).
		WithArgs("approved", "s1", sqlmock.AnyArg(), "checked", "c1", "pending").
		WillReturnRows(rows)

	updated, err := s.CASUpdateClaim(context.Background(), "c1", claims.StatusPending, claims.Patch{
		Status: claims.StatusApproved, DecidedBy: "s1", DecidedAt: decidedAt, AdminNotes: "checked",
	})
	require.NoError(t, err)
	assert.Equal(t, claims.StatusApproved, updated.Status)
	assert.Equal(t, "s1", updated.DecidedBy)
	require.NotNil(t, updated.DecidedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CASUpdateClaim_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)

	// CAS misses: no row returned, then the re-read finds the claim in a
	// different state.
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE claims")).
		WithArgs("approved", "s1", sqlmock.AnyArg(), "", "c1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM claims WHERE id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("approved"))

	_, err = s.CASUpdateClaim(context.Background(), "c1", claims.StatusPending, claims.Patch{
		Status: claims.StatusApproved, DecidedBy: "s1", DecidedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CASUpdateClaim_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE claims")).
		WithArgs("approved", "s1", sqlmock.AnyArg(), "", "missing", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM claims WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err = s.CASUpdateClaim(context.Background(), "missing", claims.StatusPending, claims.Patch{
		Status: claims.StatusApproved, DecidedBy: "s1", DecidedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeletePost(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM forum_posts WHERE id = $1")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.DeletePost(ctx, "p1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM forum_posts WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.DeletePost(ctx, "missing"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
