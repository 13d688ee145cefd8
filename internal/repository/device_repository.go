package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/labexam-backend/internal/model"
)

const deviceColumns = `id, hostname, mac_address, approved, last_seen, created_at`

// DeviceRepository handles lab workstation registrations.
type DeviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

func scanDevice(row pgx.Row) (*model.Device, error) {
	d := &model.Device{}
	if err := row.Scan(&d.ID, &d.Hostname, &d.MacAddress, &d.Approved, &d.LastSeen, &d.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// Register inserts a device keyed by hostname, or returns the existing one.
// The boolean reports whether a new row was created.
func (r *DeviceRepository) Register(ctx context.Context, hostname, mac string, at time.Time) (*model.Device, bool, error) {
	d, err := scanDevice(r.pool.QueryRow(ctx,
		`INSERT INTO devices (hostname, mac_address, last_seen)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (hostname) DO NOTHING
		 RETURNING `+deviceColumns, hostname, mac, at))
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	d, err = scanDevice(r.pool.QueryRow(ctx,
		`UPDATE devices SET last_seen = $2 WHERE hostname = $1 RETURNING `+deviceColumns, hostname, at))
	if err != nil {
		return nil, false, err
	}
	return d, false, nil
}

// GetByID retrieves a device.
func (r *DeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
}

// Touch records that the device was seen.
func (r *DeviceRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE devices SET last_seen = $2 WHERE id = $1`, id, at)
	return err
}

// List returns all devices, most recently seen first.
func (r *DeviceRepository) List(ctx context.Context) ([]model.Device, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY last_seen DESC NULLS LAST, hostname`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// Approve marks a device approved.
func (r *DeviceRepository) Approve(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE devices SET approved = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a device. Sessions bound to it keep their history.
func (r *DeviceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountApproved returns the number of approved devices.
func (r *DeviceRepository) CountApproved(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices WHERE approved`).Scan(&n)
	return n, err
}
