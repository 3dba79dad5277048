/*
store.go - Persistence interface for the settlement engine

PURPOSE:
  Defines the storage contract consumed by the generator and the
  lifecycle manager. Implemented by store/sqlite (production) and
  settlement/store (in-memory, for tests and demos).

TRANSACTION MODEL:
  WithTx runs fn against a transactional view of the store. Everything
  written inside fn commits atomically or not at all. The generator
  wraps each creator's delete-then-insert in one transaction so a
  failure for one creator never rolls back the others, and a
  settlement's items and TotalAmount always change together.

NOT-FOUND CONVENTION:
  Get* methods return (nil, nil) for missing rows, matching the store
  layer's read semantics. The domain layer converts nil into the
  specific sentinel errors from errors.go.

SEE ALSO:
  - generator.go, lifecycle.go: Consumers
  - store/memory.go: In-memory implementation
  - ../store/sqlite/sqlite.go: SQLite implementation
*/
package settlement

import (
	"context"
	"time"
)

// SettlementFilter narrows ListSettlements results. Zero values mean
// "no filter"; Page is 1-based.
type SettlementFilter struct {
	Year     int
	Month    int
	Status   SettlementStatus
	StarID   string
	Page     int
	PageSize int
}

// Store is the full persistence surface of the settlement engine.
type Store interface {
	// Stars and grades
	SaveStar(ctx context.Context, star Star) error
	GetStar(ctx context.Context, id string) (*Star, error)
	ListStars(ctx context.Context) ([]Star, error)
	SaveGrade(ctx context.Context, grade Grade) error
	GetGrade(ctx context.Context, id string) (*Grade, error)
	ListGrades(ctx context.Context) ([]Grade, error)
	// DeleteGrade removes the grade and resets its members to
	// unassigned (GradeID = nil). Never cascades to stars.
	DeleteGrade(ctx context.Context, id string) error

	// Videos and submissions
	SaveVideo(ctx context.Context, video Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	SaveSubmission(ctx context.Context, sub Submission) error
	// ListApprovedSubmissions returns APPROVED submissions created in
	// [from, to), each with its Video populated.
	ListApprovedSubmissions(ctx context.Context, from, to time.Time) ([]Submission, error)

	// System settings
	GetSetting(ctx context.Context, key string) (*SystemSetting, error)
	SaveSetting(ctx context.Context, setting SystemSetting) error
	ListSettings(ctx context.Context) ([]SystemSetting, error)

	// Settlements
	SaveSettlement(ctx context.Context, s Settlement) error
	// GetSettlement returns the settlement with Star and Items populated.
	GetSettlement(ctx context.Context, id string) (*Settlement, error)
	GetSettlementForPeriod(ctx context.Context, starID string, year, month int) (*Settlement, error)
	// ListSettlements returns a page of settlements (Star populated,
	// Items not) and the total row count before paging.
	ListSettlements(ctx context.Context, filter SettlementFilter) ([]Settlement, int, error)
	// DeleteSettlement removes the settlement and cascades to its items.
	DeleteSettlement(ctx context.Context, id string) error

	// Settlement items
	InsertItems(ctx context.Context, items []SettlementItem) error
	DeleteItemsBySettlement(ctx context.Context, settlementID string) error
	GetItems(ctx context.Context, settlementID string) ([]SettlementItem, error)
	GetItem(ctx context.Context, itemID string) (*SettlementItem, error)
	SaveItem(ctx context.Context, item SettlementItem) error
	// ListOpenItemsByVideo returns VIDEO_SUBMISSION items linked to the
	// video's submissions whose parent settlement is not COMPLETED.
	ListOpenItemsByVideo(ctx context.Context, videoID string) ([]SettlementItem, error)

	// WithTx executes fn within a transaction. fn receives a Store view
	// whose writes commit together when fn returns nil.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset wipes all data. Dev/demo use only.
	Reset(ctx context.Context) error
}
