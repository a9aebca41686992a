package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/projektkollen/collector/internal/domain"
)

// ErrCaseNotFound is returned when a case lookup matches nothing.
// Callers should check with errors.Is().
var ErrCaseNotFound = errors.New("case not found")

// caseSelectColumns lists the columns backing domain.CaseRecord.
const caseSelectColumns = `source, case_number, title, status, sender, location, municipality, url, registered_at, decided_at`

// CaseRepository handles database operations for collected cases.
type CaseRepository struct {
	db *sqlx.DB
}

// NewCaseRepository creates a new case repository.
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// Upsert inserts a case or refreshes the stored row when the same
// (source, case_number) pair already exists. The result tells the caller
// whether the record was new. xmax is zero only for a freshly inserted
// row version, which distinguishes the two outcomes without a second
// round trip.
func (r *CaseRepository) Upsert(ctx context.Context, rec *domain.CaseRecord) (domain.UpsertResult, error) {
	query := `
		INSERT INTO cases (source, case_number, title, status, sender, location, municipality, url, registered_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source, case_number) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			sender = EXCLUDED.sender,
			location = EXCLUDED.location,
			municipality = EXCLUDED.municipality,
			url = EXCLUDED.url,
			registered_at = EXCLUDED.registered_at,
			decided_at = EXCLUDED.decided_at,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.db.GetContext(
		ctx, &inserted, query,
		rec.Source, rec.CaseNumber, rec.Title, rec.Status, rec.Sender,
		rec.Location, rec.Municipality, rec.URL, rec.RegisteredAt, rec.DecidedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert case %s/%s: %w", rec.Source, rec.CaseNumber, err)
	}

	if inserted {
		return domain.ResultCreated, nil
	}
	return domain.ResultUpdated, nil
}

// Get returns one case by its source and case number.
func (r *CaseRepository) Get(ctx context.Context, source, caseNumber string) (*domain.CaseRecord, error) {
	query := `SELECT ` + caseSelectColumns + ` FROM cases WHERE source = $1 AND case_number = $2`

	var rec domain.CaseRecord
	err := r.db.GetContext(ctx, &rec, query, source, caseNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get case %s/%s: %w", source, caseNumber, err)
	}

	return &rec, nil
}

// CountBySource returns the number of stored cases per region.
func (r *CaseRepository) CountBySource(ctx context.Context) (map[string]int, error) {
	query := `SELECT source, COUNT(*) FROM cases GROUP BY source`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if scanErr := rows.Scan(&source, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan case count row: %w", scanErr)
		}
		counts[source] = count
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate case counts: %w", rowsErr)
	}

	return counts, nil
}

// ListMissingDetails returns cases that have a detail page link but no
// fetched details yet, newest first. An empty source matches all regions.
func (r *CaseRepository) ListMissingDetails(ctx context.Context, source string, limit int) ([]domain.CaseRecord, error) {
	query := `
		SELECT ` + caseSelectColumns + `
		FROM cases
		WHERE details_fetched_at IS NULL
		  AND url <> ''
		  AND ($1 = '' OR source = $1)
		ORDER BY registered_at DESC NULLS LAST
		LIMIT $2
	`

	var recs []domain.CaseRecord
	if err := r.db.SelectContext(ctx, &recs, query, source, limit); err != nil {
		return nil, fmt.Errorf("failed to list cases missing details: %w", err)
	}

	return recs, nil
}

// UpdateDetails merges detail page fields into a stored case. Empty
// detail values never blank out list values already stored.
func (r *CaseRepository) UpdateDetails(ctx context.Context, source, caseNumber string, details *domain.CaseDetails) error {
	docsJSON, err := json.Marshal(details.Documents)
	if err != nil {
		return fmt.Errorf("failed to marshal documents for case %s/%s: %w", source, caseNumber, err)
	}

	query := `
		UPDATE cases
		SET diarium = COALESCE(NULLIF($3, ''), diarium),
			title = COALESCE(NULLIF($4, ''), title),
			status = COALESCE(NULLIF($5, ''), status),
			sender = COALESCE(NULLIF($6, ''), sender),
			municipality = COALESCE(NULLIF($7, ''), municipality),
			registered_at = COALESCE($8, registered_at),
			decided_at = COALESCE($9, decided_at),
			documents = $10,
			details_fetched_at = NOW(),
			updated_at = NOW()
		WHERE source = $1 AND case_number = $2
	`

	result, execErr := r.db.ExecContext(
		ctx, query,
		source, caseNumber,
		details.Diarium, details.Title, details.Status, details.Sender,
		details.Municipality, details.RegisteredAt, details.DecidedAt,
		string(docsJSON),
	)
	return execRequireRows(result, execErr, fmt.Errorf("%w: %s/%s", ErrCaseNotFound, source, caseNumber))
}
