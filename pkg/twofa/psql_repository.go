package twofa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-idm-twofactor/pkg/encryption"
	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresProfileRepository implements ProfileRepository using PostgreSQL.
// The TOTP secret is sealed with cipher before it reaches the database.
type PostgresProfileRepository struct {
	db     DBTX
	cipher encryption.Cipher
}

// NewPostgresProfileRepository creates a new PostgreSQL profile repository.
// A nil cipher stores secrets unencrypted.
func NewPostgresProfileRepository(db DBTX, cipher encryption.Cipher) *PostgresProfileRepository {
	if cipher == nil {
		cipher = encryption.PlaintextCipher{}
	}
	return &PostgresProfileRepository{db: db, cipher: cipher}
}

const profileColumns = "user_id, secret, security_question, security_answer_hash, created_at, updated_at"

func (r *PostgresProfileRepository) scan(row pgx.Row) (TwoFactorProfile, error) {
	var (
		p        TwoFactorProfile
		sealed   string
		question sql.NullString
		answer   sql.NullString
	)
	if err := row.Scan(&p.UserID, &sealed, &question, &answer, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return TwoFactorProfile{}, err
	}
	secret, err := openSecret(r.cipher, sealed)
	if err != nil {
		return TwoFactorProfile{}, err
	}
	p.Secret = secret
	p.SecurityQuestion = question.String
	p.SecurityAnswerHash = answer.String
	return p, nil
}

func (r *PostgresProfileRepository) GetProfile(ctx context.Context, userID string) (TwoFactorProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM two_factor_profile WHERE user_id = $1`

	p, err := r.scan(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TwoFactorProfile{}, ErrProfileNotFound
		}
		return TwoFactorProfile{}, fmt.Errorf("failed to get two factor profile: %w", err)
	}
	return p, nil
}

func (r *PostgresProfileRepository) CreateProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error) {
	sealed, err := sealSecret(r.cipher, profile.Secret)
	if err != nil {
		return TwoFactorProfile{}, err
	}

	query := `
		INSERT INTO two_factor_profile (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + profileColumns

	saved, err := r.scan(r.db.QueryRow(ctx, query,
		profile.UserID, sealed, utils.ToNullString(profile.SecurityQuestion), utils.ToNullString(profile.SecurityAnswerHash),
		profile.CreatedAt.UTC(), profile.UpdatedAt.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TwoFactorProfile{}, ErrProfileExists
		}
		return TwoFactorProfile{}, fmt.Errorf("failed to create two factor profile: %w", err)
	}
	return saved, nil
}

func (r *PostgresProfileRepository) UpsertProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error) {
	sealed, err := sealSecret(r.cipher, profile.Secret)
	if err != nil {
		return TwoFactorProfile{}, err
	}

	query := `
		INSERT INTO two_factor_profile (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret,
		    security_question = EXCLUDED.security_question,
		    security_answer_hash = EXCLUDED.security_answer_hash,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + profileColumns

	saved, err := r.scan(r.db.QueryRow(ctx, query,
		profile.UserID, sealed, utils.ToNullString(profile.SecurityQuestion), utils.ToNullString(profile.SecurityAnswerHash),
		profile.CreatedAt.UTC(), profile.UpdatedAt.UTC()))
	if err != nil {
		return TwoFactorProfile{}, fmt.Errorf("failed to upsert two factor profile: %w", err)
	}
	return saved, nil
}

func (r *PostgresProfileRepository) DeleteProfile(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM two_factor_profile WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete two factor profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
