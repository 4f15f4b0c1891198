package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        id,
        category,
        priority,
        source,
        title,
        summary,
        details_kind,
        details,
        tags,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    );`

	listRecentAlertsSQL = `SELECT
        id,
        category,
        priority,
        source,
        title,
        summary,
        details_kind,
        details,
        tags,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	upsertDedupSQL = `INSERT INTO dedup_records (fingerprint, approved_at)
    VALUES ($1, $2)
    ON CONFLICT (fingerprint) DO UPDATE
    SET approved_at = EXCLUDED.approved_at;`

	dedupExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM dedup_records
        WHERE fingerprint = $1
          AND approved_at >= $2
    );`

	deleteDedupBeforeSQL = `DELETE FROM dedup_records WHERE approved_at < $1;`

	insertMetricSampleSQL = `INSERT INTO metric_samples (
        entity_id,
        entity_name,
        source,
        value,
        breakdown,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (entity_id, observed_at) DO UPDATE
    SET entity_name = EXCLUDED.entity_name,
        source      = EXCLUDED.source,
        value       = EXCLUDED.value,
        breakdown   = EXCLUDED.breakdown;`

	listSamplesForEntitySQL = `SELECT
        entity_id,
        entity_name,
        source,
        value,
        breakdown,
        observed_at,
        created_at
    FROM metric_samples
    WHERE entity_id = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	countSamplesSQL = `SELECT COUNT(*) FROM metric_samples;`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// MetricSampleStore defines operations for metric snapshot persistence.
type MetricSampleStore interface {
	UpsertMetricSample(ctx context.Context, sample MetricSample) error
	ListSamplesForEntity(ctx context.Context, entityID string, from, to time.Time) ([]MetricSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// Store aggregates access to alerts, dedup records, and metric samples.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAlert persists an approved alert.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.ID,
		alert.Category,
		alert.Priority,
		alert.Source,
		alert.Title,
		alert.Summary,
		alert.DetailsKind,
		[]byte(alert.Details),
		alert.Tags,
		alert.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Category,
			&rec.Priority,
			&rec.Source,
			&rec.Title,
			&rec.Summary,
			&rec.DetailsKind,
			&rec.Details,
			&rec.Tags,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// Insert records an approved fingerprint. Implements gate.DedupStore.
func (s *Store) Insert(ctx context.Context, fingerprint string, approvedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertDedupSQL, fingerprint, approvedAt); execErr != nil {
		return fmt.Errorf("upsert dedup record: %w", execErr)
	}
	return nil
}

// ExistsWithin reports whether fingerprint was approved within window.
// Implements gate.DedupStore.
func (s *Store) ExistsWithin(ctx context.Context, fingerprint string, window time.Duration) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cutoff := time.Now().UTC().Add(-window)
	var exists bool
	if scanErr := pool.QueryRow(ctx, dedupExistsSQL, fingerprint, cutoff).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("check dedup record: %w", scanErr)
	}
	return exists, nil
}

// DeleteDedupBefore prunes expired fingerprints.
func (s *Store) DeleteDedupBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteDedupBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete dedup records before: %w", execErr)
	}
	return nil
}

// UpsertMetricSample persists or updates a metric snapshot.
func (s *Store) UpsertMetricSample(ctx context.Context, sample MetricSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertMetricSampleSQL,
		sample.EntityID,
		sample.EntityName,
		sample.Source,
		sample.Value.String(),
		[]byte(sample.Breakdown),
		sample.ObservedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert metric sample: %w", execErr)
	}
	return nil
}

// ListSamplesForEntity lists snapshots for one entity within a window.
func (s *Store) ListSamplesForEntity(ctx context.Context, entityID string, from, to time.Time) ([]MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesForEntitySQL, entityID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples for entity: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]MetricSample, 0)
	for rows.Next() {
		sample, scanErr := scanMetricSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored snapshots.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

func scanMetricSample(rows pgx.Rows) (MetricSample, error) {
	var (
		sample   MetricSample
		valueStr string
	)

	if err := rows.Scan(
		&sample.EntityID,
		&sample.EntityName,
		&sample.Source,
		&valueStr,
		&sample.Breakdown,
		&sample.ObservedAt,
		&sample.CreatedAt,
	); err != nil {
		return MetricSample{}, err
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return MetricSample{}, fmt.Errorf("parse sample value: %w", err)
	}
	sample.Value = value

	return sample, nil
}
