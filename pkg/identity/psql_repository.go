package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresDirectory reads users and domains from the idm_user and idm_domain tables
type PostgresDirectory struct {
	db DBTX
}

func NewPostgresDirectory(db DBTX) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const userColumns = "id, domain_id, name, COALESCE(email, ''), enabled, created_at"

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DomainID, &u.Name, &u.Email, &u.Enabled, &u.CreatedAt)
	return u, err
}

func (r *PostgresDirectory) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM idm_user WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *PostgresDirectory) GetUserByName(ctx context.Context, name, domainID string) (User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM idm_user WHERE name = $1 AND domain_id = $2`, name, domainID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user by name: %w", err)
	}
	return user, nil
}

func (r *PostgresDirectory) GetDomainByName(ctx context.Context, name string) (Domain, error) {
	var d Domain
	err := r.db.QueryRow(ctx, `SELECT id, name, enabled, created_at FROM idm_domain WHERE name = $1`, name).
		Scan(&d.ID, &d.Name, &d.Enabled, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Domain{}, ErrDomainNotFound
		}
		return Domain{}, fmt.Errorf("failed to get domain: %w", err)
	}
	return d, nil
}
