/*
generator.go - Monthly settlement generation

PURPOSE:
  Produces or replaces Settlement + SettlementItem rows for a target
  (year, month) across all creators with eligible submissions.

ALGORITHM:
  1. Load all APPROVED submissions created inside the month, grouped by
     the owning creator (submission -> video -> owner, the single
     canonical path).
  2. Per creator:
     - COMPLETED settlement for the period  -> skip, warn (immutable)
     - any submission resolving to no rate  -> skip, warn (config gap)
     - otherwise build one VIDEO_SUBMISSION item per submission plus an
       optional flat AI_TOOL_SUPPORT item, then replace the settlement
       transactionally: delete old non-completed items, insert new
       ones, recompute the total. All inside one transaction.
  3. Return created settlements plus the aggregated warnings.

IDEMPOTENCY:
  Regeneration is a deterministic replace, not an append. Running
  Generate twice for the same month (with no completions in between)
  yields identical totals and item counts.

FAILURE SEMANTICS:
  Per-creator failures are isolated: one bad creator lands in the
  warnings, the loop continues. Only a hard failure reading the
  submission set or the generation settings aborts the whole call.

AI TOOL SUPPORT FEE:
  Whether the flat fee applies is a configurable policy, not a
  hard-coded rule: ai_tool_support_enabled gates it and
  ai_tool_support_fee sets the amount. A disabled flag or non-positive
  fee simply produces no item.

SEE ALSO:
  - resolver.go: Per-submission rate resolution
  - lifecycle.go: Post-generation transitions and edits
*/
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errNoRate marks a creator excluded because no rate level is configured.
var errNoRate = errors.New("no base rate configured")

// =============================================================================
// RESULT TYPES
// =============================================================================

// StarRef identifies a creator in a warnings list.
type StarRef struct {
	StarID   string
	StarName string
}

// SkippedStar is a creator excluded from a generation cycle.
type SkippedStar struct {
	StarID   string
	StarName string
	Reason   string
}

// FailedStar is a creator whose settlement write failed.
type FailedStar struct {
	StarID   string
	StarName string
	Error    string
}

// Warnings aggregates the per-creator outcomes that did not produce a
// settlement. The generation call as a whole still succeeds.
type Warnings struct {
	Skipped   []SkippedStar
	Completed []StarRef
	Failed    []FailedStar
}

// Result is the outcome of one Generate call.
type Result struct {
	Year        int
	Month       int
	Settlements []Settlement
	Warnings    Warnings
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator builds monthly settlements from approved submissions.
type Generator struct {
	store Store
	now   func() time.Time
}

// NewGenerator creates a generator over the given store.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// Generate produces/replaces settlements for every creator with at
// least one APPROVED submission in the given month.
func (g *Generator) Generate(ctx context.Context, year, month int) (*Result, error) {
	period, err := MonthPeriod(year, month)
	if err != nil {
		return nil, err
	}

	subs, err := g.store.ListApprovedSubmissions(ctx, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("load approved submissions: %w", err)
	}

	byStar := make(map[string][]Submission)
	for _, sub := range subs {
		byStar[sub.Video.OwnerID] = append(byStar[sub.Video.OwnerID], sub)
	}

	// Deterministic iteration order. No cross-creator ordering is
	// guaranteed to callers, but stable runs make logs comparable.
	starIDs := make([]string, 0, len(byStar))
	for id := range byStar {
		starIDs = append(starIDs, id)
	}
	sort.Strings(starIDs)

	aiFee, aiEnabled, err := g.aiToolSupport(ctx)
	if err != nil {
		return nil, fmt.Errorf("load generation settings: %w", err)
	}

	result := &Result{Year: year, Month: month}
	for _, starID := range starIDs {
		created, star, err := g.generateForStar(ctx, starID, byStar[starID], year, month, aiFee, aiEnabled)
		name := starID
		if star != nil {
			name = star.Name
		}
		switch {
		case err == nil:
			result.Settlements = append(result.Settlements, *created)
		case errors.Is(err, ErrSettlementCompleted):
			slog.Warn("settlement already completed, skipping regeneration",
				"star_id", starID, "year", year, "month", month)
			result.Warnings.Completed = append(result.Warnings.Completed,
				StarRef{StarID: starID, StarName: name})
		case errors.Is(err, errNoRate):
			slog.Warn("no base rate configured, skipping creator",
				"star_id", starID, "year", year, "month", month)
			result.Warnings.Skipped = append(result.Warnings.Skipped,
				SkippedStar{StarID: starID, StarName: name, Reason: errNoRate.Error()})
		default:
			slog.Warn("settlement generation failed for creator",
				"star_id", starID, "year", year, "month", month, "error", err)
			result.Warnings.Failed = append(result.Warnings.Failed,
				FailedStar{StarID: starID, StarName: name, Error: err.Error()})
		}
	}

	slog.Info("settlement generation finished",
		"year", year, "month", month,
		"created", len(result.Settlements),
		"skipped", len(result.Warnings.Skipped),
		"completed", len(result.Warnings.Completed),
		"failed", len(result.Warnings.Failed))

	return result, nil
}

// generateForStar runs the read-resolve-write sequence for one creator.
// The write is a single transaction: the settlement shell, the item
// replacement, and the recomputed total commit together or not at all.
func (g *Generator) generateForStar(ctx context.Context, starID string, subs []Submission, year, month int, aiFee decimal.Decimal, aiEnabled bool) (*Settlement, *Star, error) {
	star, err := g.store.GetStar(ctx, starID)
	if err != nil {
		return nil, nil, err
	}
	if star == nil {
		return nil, nil, ErrStarNotFound
	}

	// Cheap pre-check; the transactional path re-checks to close the
	// race with a concurrent Complete.
	existing, err := g.store.GetSettlementForPeriod(ctx, starID, year, month)
	if err != nil {
		return nil, star, err
	}
	if existing != nil && existing.Status == StatusCompleted {
		return nil, star, ErrSettlementCompleted
	}

	// Resolve every submission before writing anything. One
	// unresolvable rate excludes the creator from this cycle entirely.
	items := make([]SettlementItem, 0, len(subs)+1)
	for _, sub := range subs {
		rate := ResolveRate(*star, *sub.Video)
		if !rate.Resolved() {
			return nil, star, errNoRate
		}
		subID := sub.ID
		items = append(items, SettlementItem{
			ItemType:     ItemVideoSubmission,
			BaseAmount:   rate.Amount,
			Description:  fmt.Sprintf("%s (v%d)", sub.Video.Title, sub.Version),
			SubmissionID: &subID,
		})
	}
	if aiEnabled && aiFee.IsPositive() {
		items = append(items, SettlementItem{
			ItemType:    ItemAIToolSupport,
			BaseAmount:  aiFee,
			Description: "AI tool support",
		})
	}

	now := g.now().UTC()
	var saved Settlement
	err = g.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.GetSettlementForPeriod(ctx, starID, year, month)
		if err != nil {
			return err
		}

		s := Settlement{
			StarID:    starID,
			Year:      year,
			Month:     month,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if current != nil {
			if current.Status == StatusCompleted {
				return ErrSettlementCompleted
			}
			// Replace in place: keep identity and admin-entered fields,
			// reset the status to freshly generated.
			s.ID = current.ID
			s.PaymentDate = current.PaymentDate
			s.Note = current.Note
			s.CreatedAt = current.CreatedAt
			if err := tx.DeleteItemsBySettlement(ctx, current.ID); err != nil {
				return err
			}
		} else {
			s.ID = uuid.New().String()
		}

		for i := range items {
			items[i].ID = uuid.New().String()
			items[i].SettlementID = s.ID
			items[i].CreatedAt = now
		}
		s.TotalAmount = SumItems(items)

		if err := tx.SaveSettlement(ctx, s); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}

		s.Items = items
		saved = s
		return nil
	})
	if err != nil {
		return nil, star, err
	}
	saved.Star = star
	return &saved, star, nil
}

// aiToolSupport reads the flat-fee policy from system settings.
// Missing rows mean the fee is disabled; a read failure aborts
// generation rather than silently underpaying.
func (g *Generator) aiToolSupport(ctx context.Context) (decimal.Decimal, bool, error) {
	enabledRow, err := g.store.GetSetting(ctx, SettingAIToolSupportEnabled)
	if err != nil {
		return decimal.Zero, false, err
	}
	if enabledRow == nil || !enabledRow.BoolValue() {
		return decimal.Zero, false, nil
	}

	feeRow, err := g.store.GetSetting(ctx, SettingAIToolSupportFee)
	if err != nil {
		return decimal.Zero, false, err
	}
	if feeRow == nil {
		return decimal.Zero, false, nil
	}
	return feeRow.DecimalValue(), true, nil
}
