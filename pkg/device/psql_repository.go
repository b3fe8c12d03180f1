package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresDeviceRepository implements DeviceRepository using PostgreSQL
type PostgresDeviceRepository struct {
	db DBTX
}

// NewPostgresDeviceRepository creates a new PostgreSQL device repository
func NewPostgresDeviceRepository(db DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

const deviceColumns = "user_id, device_id, token_hash, created_at, expires_at"

func scanDevice(row pgx.Row) (DeviceRecord, error) {
	var rec DeviceRecord
	err := row.Scan(&rec.UserID, &rec.DeviceID, &rec.TokenHash, &rec.CreatedAt, &rec.ExpiresAt)
	return rec, err
}

func (r *PostgresDeviceRepository) UpsertDevice(ctx context.Context, rec DeviceRecord) (DeviceRecord, error) {
	query := `
		INSERT INTO remembered_device (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, device_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash,
		    expires_at = EXCLUDED.expires_at
		RETURNING ` + deviceColumns

	saved, err := scanDevice(r.db.QueryRow(ctx, query,
		rec.UserID, rec.DeviceID, rec.TokenHash, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC()))
	if err != nil {
		return DeviceRecord{}, fmt.Errorf("failed to upsert remembered device: %w", err)
	}
	return saved, nil
}

func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, userID, deviceID string) (DeviceRecord, error) {
	query := `SELECT ` + deviceColumns + ` FROM remembered_device WHERE user_id = $1 AND device_id = $2`

	rec, err := scanDevice(r.db.QueryRow(ctx, query, userID, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeviceRecord{}, ErrDeviceNotFound
		}
		return DeviceRecord{}, fmt.Errorf("failed to get remembered device: %w", err)
	}
	return rec, nil
}

func (r *PostgresDeviceRepository) ListDevicesByUser(ctx context.Context, userID string) ([]DeviceRecord, error) {
	query := `SELECT ` + deviceColumns + ` FROM remembered_device WHERE user_id = $1 ORDER BY created_at, device_id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list remembered devices: %w", err)
	}
	defer rows.Close()

	records := []DeviceRecord{}
	for rows.Next() {
		rec, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan remembered device: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate remembered devices: %w", err)
	}
	return records, nil
}

func (r *PostgresDeviceRepository) DeleteExpiredDevice(ctx context.Context, userID, deviceID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM remembered_device WHERE user_id = $1 AND device_id = $2 AND expires_at <= $3`,
		userID, deviceID, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to delete expired device: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresDeviceRepository) DeleteDevicesByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM remembered_device WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete remembered devices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresDeviceRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM remembered_device WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired devices: %w", err)
	}
	return tag.RowsAffected(), nil
}
