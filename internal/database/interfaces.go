package database

import (
	"context"

	"github.com/projektkollen/collector/internal/domain"
)

// CaseStore defines the contract for case data access.
type CaseStore interface {
	Upsert(ctx context.Context, rec *domain.CaseRecord) (domain.UpsertResult, error)
	Get(ctx context.Context, source, caseNumber string) (*domain.CaseRecord, error)
	CountBySource(ctx context.Context) (map[string]int, error)
	ListMissingDetails(ctx context.Context, source string, limit int) ([]domain.CaseRecord, error)
	UpdateDetails(ctx context.Context, source, caseNumber string, details *domain.CaseDetails) error
}

// RegionStatusStore defines the contract for region progress data access.
type RegionStatusStore interface {
	Get(ctx context.Context, source string) (*domain.RegionStatus, error)
	RecordPage(ctx context.Context, source string, page, totalPages int) error
	RecordError(ctx context.Context, source, message string) error
	RecordCompleted(ctx context.Context, source string) error
	List(ctx context.Context) ([]domain.RegionStatus, error)
}
