package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/projektkollen/collector/internal/domain"
)

// ErrStatusNotFound is returned when a region has no recorded progress.
// Callers should check with errors.Is() and treat it as a fresh start.
var ErrStatusNotFound = errors.New("region status not found")

// statusSelectColumns lists the columns backing domain.RegionStatus.
const statusSelectColumns = `source, last_fetch_at, last_page_fetched, total_pages, error_count, last_error`

// RegionStatusRepository tracks per-region collection progress.
type RegionStatusRepository struct {
	db *sqlx.DB
}

// NewRegionStatusRepository creates a new region status repository.
func NewRegionStatusRepository(db *sqlx.DB) *RegionStatusRepository {
	return &RegionStatusRepository{db: db}
}

// Get returns the stored progress for one region.
func (r *RegionStatusRepository) Get(ctx context.Context, source string) (*domain.RegionStatus, error) {
	query := `SELECT ` + statusSelectColumns + ` FROM region_status WHERE source = $1`

	var status domain.RegionStatus
	err := r.db.GetContext(ctx, &status, query, source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("failed to get region status for %s: %w", source, err)
	}

	return &status, nil
}

// RecordPage stores a successfully collected page so an interrupted sweep
// can resume where it stopped. A zero totalPages keeps any earlier value.
func (r *RegionStatusRepository) RecordPage(ctx context.Context, source string, page, totalPages int) error {
	query := `
		INSERT INTO region_status (source, last_page_fetched, total_pages, last_fetch_at, updated_at)
		VALUES ($1, $2, NULLIF($3, 0), NOW(), NOW())
		ON CONFLICT (source) DO UPDATE SET
			last_page_fetched = EXCLUDED.last_page_fetched,
			total_pages = COALESCE(EXCLUDED.total_pages, region_status.total_pages),
			last_fetch_at = NOW(),
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, source, page, totalPages); err != nil {
		return fmt.Errorf("failed to record page %d for %s: %w", page, source, err)
	}

	return nil
}

// RecordError notes a failed region sweep without touching stored progress.
func (r *RegionStatusRepository) RecordError(ctx context.Context, source, message string) error {
	query := `
		INSERT INTO region_status (source, error_count, last_error, updated_at)
		VALUES ($1, 1, $2, NOW())
		ON CONFLICT (source) DO UPDATE SET
			error_count = region_status.error_count + 1,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, source, message); err != nil {
		return fmt.Errorf("failed to record error for %s: %w", source, err)
	}

	return nil
}

// RecordCompleted resets progress after a region has been swept to the
// end, so the next run starts from the first page again.
func (r *RegionStatusRepository) RecordCompleted(ctx context.Context, source string) error {
	query := `
		INSERT INTO region_status (source, last_page_fetched, last_fetch_at, updated_at)
		VALUES ($1, 0, NOW(), NOW())
		ON CONFLICT (source) DO UPDATE SET
			last_page_fetched = 0,
			error_count = 0,
			last_error = NULL,
			last_fetch_at = NOW(),
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, source); err != nil {
		return fmt.Errorf("failed to record completion for %s: %w", source, err)
	}

	return nil
}

// List returns the stored progress for every region that has any.
func (r *RegionStatusRepository) List(ctx context.Context) ([]domain.RegionStatus, error) {
	query := `SELECT ` + statusSelectColumns + ` FROM region_status ORDER BY source`

	var statuses []domain.RegionStatus
	if err := r.db.SelectContext(ctx, &statuses, query); err != nil {
		return nil, fmt.Errorf("failed to list region statuses: %w", err)
	}

	return statuses, nil
}
