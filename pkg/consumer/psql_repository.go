package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
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

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db     DBTX
	cipher encryption.Cipher
}

// NewPostgresRepository creates a new PostgreSQL consumer repository.
// A nil cipher stores consumer secrets unencrypted.
func NewPostgresRepository(db DBTX, cipher encryption.Cipher) *PostgresRepository {
	if cipher == nil {
		cipher = encryption.PlaintextCipher{}
	}
	return &PostgresRepository{db: db, cipher: cipher}
}

const (
	consumerColumns = "id, description, secret, client_type, redirect_uris, grant_type, response_type, scopes, created_at, updated_at"
	codeColumns     = "code, consumer_id, authorizing_user_id, expires_at, scopes, created_at"
)

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(data []byte) ([]string, error) {
	var values []string
	if len(data) == 0 {
		return []string{}, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *PostgresRepository) scanConsumer(row pgx.Row) (Consumer, error) {
	var (
		c            Consumer
		description  sql.NullString
		sealed       string
		redirectURIs []byte
		scopes       []byte
	)
	err := row.Scan(&c.ID, &description, &sealed, &c.ClientType, &redirectURIs,
		&c.GrantType, &c.ResponseType, &scopes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Consumer{}, err
	}
	c.Description = utils.FromNullString(description)
	if c.Secret, err = r.cipher.Decrypt(sealed); err != nil {
		return Consumer{}, fmt.Errorf("failed to decrypt consumer secret: %w", err)
	}
	if c.RedirectURIs, err = decodeList(redirectURIs); err != nil {
		return Consumer{}, fmt.Errorf("failed to decode redirect_uris: %w", err)
	}
	if c.Scopes, err = decodeList(scopes); err != nil {
		return Consumer{}, fmt.Errorf("failed to decode scopes: %w", err)
	}
	return c, nil
}

func scanCode(row pgx.Row) (AuthorizationCode, error) {
	var (
		c      AuthorizationCode
		scopes []byte
	)
	if err := row.Scan(&c.Code, &c.ConsumerID, &c.AuthorizingUserID, &c.ExpiresAt, &scopes, &c.CreatedAt); err != nil {
		return AuthorizationCode{}, err
	}
	var err error
	if c.Scopes, err = decodeList(scopes); err != nil {
		return AuthorizationCode{}, fmt.Errorf("failed to decode scopes: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListConsumers(ctx context.Context) ([]Consumer, error) {
	rows, err := r.db.Query(ctx, "SELECT "+consumerColumns+" FROM consumer ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list consumers: %w", err)
	}
	defer rows.Close()

	consumers := []Consumer{}
	for rows.Next() {
		c, err := r.scanConsumer(rows)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, c)
	}
	return consumers, rows.Err()
}

func (r *PostgresRepository) CreateConsumer(ctx context.Context, consumer Consumer) (Consumer, error) {
	sealed, err := r.cipher.Encrypt(consumer.Secret)
	if err != nil {
		return Consumer{}, fmt.Errorf("failed to encrypt consumer secret: %w", err)
	}
	redirectURIs, err := encodeList(consumer.RedirectURIs)
	if err != nil {
		return Consumer{}, err
	}
	scopes, err := encodeList(consumer.Scopes)
	if err != nil {
		return Consumer{}, err
	}

	query := `
		INSERT INTO consumer (` + consumerColumns + `)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8::jsonb, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + consumerColumns

	created, err := r.scanConsumer(r.db.QueryRow(ctx, query,
		consumer.ID, consumer.Description, sealed, consumer.ClientType, redirectURIs,
		consumer.GrantType, consumer.ResponseType, scopes, consumer.CreatedAt, consumer.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consumer{}, ErrConsumerExists
		}
		return Consumer{}, fmt.Errorf("failed to create consumer: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetConsumer(ctx context.Context, id string) (Consumer, error) {
	c, err := r.scanConsumer(r.db.QueryRow(ctx, "SELECT "+consumerColumns+" FROM consumer WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consumer{}, ErrConsumerNotFound
		}
		return Consumer{}, fmt.Errorf("failed to get consumer: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) UpdateConsumer(ctx context.Context, consumer Consumer) (Consumer, error) {
	redirectURIs, err := encodeList(consumer.RedirectURIs)
	if err != nil {
		return Consumer{}, err
	}
	scopes, err := encodeList(consumer.Scopes)
	if err != nil {
		return Consumer{}, err
	}

	query := `
		UPDATE consumer
		SET description = $2, client_type = $3, redirect_uris = $4::jsonb,
		    grant_type = $5, response_type = $6, scopes = $7::jsonb, updated_at = $8
		WHERE id = $1
		RETURNING ` + consumerColumns

	updated, err := r.scanConsumer(r.db.QueryRow(ctx, query,
		consumer.ID, consumer.Description, consumer.ClientType, redirectURIs,
		consumer.GrantType, consumer.ResponseType, scopes, consumer.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consumer{}, ErrConsumerNotFound
		}
		return Consumer{}, fmt.Errorf("failed to update consumer: %w", err)
	}
	return updated, nil
}

// DeleteConsumer relies on ON DELETE CASCADE to remove the consumer's codes.
func (r *PostgresRepository) DeleteConsumer(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, "DELETE FROM consumer WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete consumer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConsumerNotFound
	}
	return nil
}

func (r *PostgresRepository) ListAuthorizationCodes(ctx context.Context) ([]AuthorizationCode, error) {
	rows, err := r.db.Query(ctx, "SELECT "+codeColumns+" FROM authorization_code ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list authorization codes: %w", err)
	}
	defer rows.Close()

	codes := []AuthorizationCode{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *PostgresRepository) CreateAuthorizationCode(ctx context.Context, code AuthorizationCode) (AuthorizationCode, error) {
	scopes, err := encodeList(code.Scopes)
	if err != nil {
		return AuthorizationCode{}, err
	}

	// Inserting through a SELECT on consumer yields no row for an unknown consumer.
	query := `
		INSERT INTO authorization_code (` + codeColumns + `)
		SELECT $1::varchar, c.id, $3::varchar, $4::timestamptz, $5::jsonb, $6::timestamptz
		FROM consumer c WHERE c.id = $2
		RETURNING ` + codeColumns

	created, err := scanCode(r.db.QueryRow(ctx, query,
		code.Code, code.ConsumerID, code.AuthorizingUserID, code.ExpiresAt, scopes, code.CreatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthorizationCode{}, ErrConsumerNotFound
		}
		return AuthorizationCode{}, fmt.Errorf("failed to create authorization code: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) TakeAuthorizationCode(ctx context.Context, code string) (AuthorizationCode, error) {
	taken, err := scanCode(r.db.QueryRow(ctx,
		"DELETE FROM authorization_code WHERE code = $1 RETURNING "+codeColumns, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthorizationCode{}, ErrAuthorizationCodeNotFound
		}
		return AuthorizationCode{}, fmt.Errorf("failed to take authorization code: %w", err)
	}
	return taken, nil
}
