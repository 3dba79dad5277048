/*
Package settlement provides the core payout engine for the talent
management platform.

PURPOSE:
  This package contains the domain model and algorithms for computing
  per-creator monthly settlements from approved video submissions:
  - Rate resolution with a video -> creator -> grade priority chain
  - Idempotent monthly settlement generation (replace, never append)
  - A settlement lifecycle state machine with guarded transitions

KEY CONCEPTS IN THIS FILE (types.go):
  - Star: A creator whose approved submissions earn monthly payouts
  - Grade: A named payout tier supplying the fallback base rate
  - Video/Submission: The produced assets and their review versions
  - Settlement/SettlementItem: The per-creator monthly aggregate
  - SystemSetting: Key/value configuration read during generation

DESIGN PRINCIPLES:
  1. Precision: All money uses decimal.Decimal, never float64
  2. Derived totals: TotalAmount is recomputed transactionally on every
     write path that touches items, never hand-edited
  3. Explicit absence: A missing rate is NONE, not zero. Zero pay must
     be an explicit setting, not a configuration gap
  4. Immutability of paid settlements: COMPLETED settlements are never
     overwritten by regeneration and never deleted

USAGE:
  gen := settlement.NewGenerator(store)
  result, err := gen.Generate(ctx, 2025, 3)

SEE ALSO:
  - resolver.go: Rate priority chain
  - generator.go: Monthly batch generation
  - lifecycle.go: State machine and item edits
  - store.go: Persistence interface
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS ENUMERATIONS
// =============================================================================

// SettlementStatus is the lifecycle state of a settlement.
type SettlementStatus string

const (
	StatusPending    SettlementStatus = "PENDING"    // Freshly generated or reset
	StatusProcessing SettlementStatus = "PROCESSING" // Being worked on by an admin
	StatusCompleted  SettlementStatus = "COMPLETED"  // Paid out; immutable
	StatusFailed     SettlementStatus = "FAILED"     // Per-settlement generation failure
)

// ValidStatus reports whether s is a known settlement status.
func ValidStatus(s SettlementStatus) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// SubmissionStatus is the review state of a submission version.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionInReview SubmissionStatus = "IN_REVIEW"
	SubmissionApproved SubmissionStatus = "APPROVED"
	SubmissionRejected SubmissionStatus = "REJECTED"
	SubmissionRevised  SubmissionStatus = "REVISED"
)

// ItemType categorizes a settlement line item.
type ItemType string

const (
	ItemVideoSubmission ItemType = "VIDEO_SUBMISSION" // One per eligible submission
	ItemAIToolSupport   ItemType = "AI_TOOL_SUPPORT"  // Flat monthly support fee
	ItemAdjustment      ItemType = "ADJUSTMENT"       // Manual admin line
)

// =============================================================================
// SYSTEM SETTING KEYS
// =============================================================================

const (
	SettingAIToolSupportFee     = "ai_tool_support_fee"
	SettingAIToolSupportEnabled = "ai_tool_support_enabled"
	SettingTaxRate              = "tax_rate"
)

// =============================================================================
// CREATORS AND GRADES
// =============================================================================

// Grade is a named payout tier. Its BaseRate is the least specific
// fallback in the rate resolution chain.
type Grade struct {
	ID        string
	Name      string
	BaseRate  decimal.Decimal // Required, >= 0
	Color     string
	SortOrder int
	CreatedAt time.Time
}

// Star is a creator. Stars are never hard-deleted so that historical
// settlements stay attributable.
type Star struct {
	ID        string
	Name      string
	Email     string
	GradeID   *string
	BaseRate  *decimal.Decimal // Creator-level override; nil means "use grade"
	CreatedAt time.Time

	// Grade is populated by store reads when GradeID is set.
	Grade *Grade
}

// =============================================================================
// VIDEOS AND SUBMISSIONS
// =============================================================================

// Video is a produced asset owned by a star. CustomRate, when set, is
// the highest-priority rate override for submissions of this video.
type Video struct {
	ID         string
	Title      string
	OwnerID    string // The single authoritative path from submission to creator
	Category   string
	Status     string
	CustomRate *decimal.Decimal
	CreatedAt  time.Time
}

// Submission is one review version of a video's deliverable. Only
// APPROVED submissions created inside the target month are eligible
// for settlement.
type Submission struct {
	ID        string
	VideoID   string
	Version   int
	Status    SubmissionStatus
	CreatedAt time.Time

	// Video is populated on eligible-submission reads so the generator
	// resolves the owner and custom rate without extra round trips.
	Video *Video
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// Settlement is the per-creator, per-month payout aggregate.
// Unique per (StarID, Year, Month).
type Settlement struct {
	ID          string
	StarID      string
	Year        int
	Month       int
	TotalAmount decimal.Decimal // Always == sum of item FinalAmount
	Status      SettlementStatus
	PaymentDate *time.Time
	Note        string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Populated by store reads: Star on list/detail, Items on detail.
	Star  *Star
	Items []SettlementItem
}

// SettlementItem is one line within a settlement.
type SettlementItem struct {
	ID             string
	SettlementID   string
	ItemType       ItemType
	BaseAmount     decimal.Decimal  // Resolved rate at generation time
	AdjustedAmount *decimal.Decimal // Manual override, nil if untouched
	Description    string
	SubmissionID   *string // Set for VIDEO_SUBMISSION items
	CreatedAt      time.Time
}

// FinalAmount is the effective amount for this item: the manual
// adjustment when present, the generated base amount otherwise.
func (i SettlementItem) FinalAmount() decimal.Decimal {
	if i.AdjustedAmount != nil {
		return *i.AdjustedAmount
	}
	return i.BaseAmount
}

// SumItems returns the settlement total implied by a set of items.
func SumItems(items []SettlementItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.FinalAmount())
	}
	return total
}

// =============================================================================
// SYSTEM SETTINGS
// =============================================================================

// SystemSetting is a key/value configuration row. Read-only to the
// generator, admin-editable through the config endpoints.
type SystemSetting struct {
	Key       string
	Value     string
	Label     string
	UpdatedAt time.Time
}

// DecimalValue parses the setting value as a decimal amount.
// Returns zero for empty or malformed values.
func (s SystemSetting) DecimalValue() decimal.Decimal {
	d, err := decimal.NewFromString(s.Value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// BoolValue parses the setting value as a boolean flag.
func (s SystemSetting) BoolValue() bool {
	return s.Value == "true" || s.Value == "1"
}
