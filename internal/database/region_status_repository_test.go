package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/projektkollen/collector/internal/database"
)

// statusColumns lists the columns returned by region status SELECT queries.
var statusColumns = []string{
	"source", "last_fetch_at", "last_page_fetched", "total_pages", "error_count", "last_error",
}

func newStatusRepo(t *testing.T) (*database.RegionStatusRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := sqlx.NewDb(mockDB, "postgres")
	repo := database.NewRegionStatusRepository(db)

	return repo, mock, func() { mockDB.Close() }
}

func TestRegionStatusRepository_Get_NotFound(t *testing.T) {
	repo, mock, cleanup := newStatusRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM region_status").
		WithArgs("lst-bd").
		WillReturnRows(sqlmock.NewRows(statusColumns))

	_, err := repo.Get(context.Background(), "lst-bd")
	if !errors.Is(err, database.ErrStatusNotFound) {
		t.Fatalf("Get() error = %v, want ErrStatusNotFound", err)
	}

	expectationsMet(t, mock)
}

func TestRegionStatusRepository_Get_Found(t *testing.T) {
	repo, mock, cleanup := newStatusRepo(t)
	defer cleanup()

	fetchedAt := time.Date(2026, time.August, 20, 6, 0, 0, 0, time.UTC)
	totalPages := 12
	rows := sqlmock.NewRows(statusColumns).
		AddRow("lst-bd", fetchedAt, 7, totalPages, 0, nil)

	mock.ExpectQuery("SELECT (.+) FROM region_status").
		WithArgs("lst-bd").
		WillReturnRows(rows)

	status, err := repo.Get(context.Background(), "lst-bd")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if status.LastPageFetched != 7 {
		t.Errorf("LastPageFetched = %d, want 7", status.LastPageFetched)
	}
	if status.TotalPages == nil || *status.TotalPages != 12 {
		t.Errorf("TotalPages = %v, want 12", status.TotalPages)
	}

	expectationsMet(t, mock)
}

func TestRegionStatusRepository_RecordPage(t *testing.T) {
	repo, mock, cleanup := newStatusRepo(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO region_status").
		WithArgs("lst-bd", 7, 12).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordPage(context.Background(), "lst-bd", 7, 12); err != nil {
		t.Fatalf("RecordPage() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestRegionStatusRepository_RecordError(t *testing.T) {
	repo, mock, cleanup := newStatusRepo(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO region_status").
		WithArgs("lst-bd", "fetch page 8 of lst-bd: status 502").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordError(context.Background(), "lst-bd", "fetch page 8 of lst-bd: status 502")
	if err != nil {
		t.Fatalf("RecordError() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestRegionStatusRepository_RecordCompleted(t *testing.T) {
	repo, mock, cleanup := newStatusRepo(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO region_status").
		WithArgs("lst-bd").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordCompleted(context.Background(), "lst-bd"); err != nil {
		t.Fatalf("RecordCompleted() error = %v", err)
	}

	expectationsMet(t, mock)
}
