/*
lifecycle.go - Settlement state machine and post-generation edits

PURPOSE:
  Owns all settlement transitions and the mutations allowed on
  non-completed settlements. Guards live in one central table, not in
  scattered boolean checks, so every handler and job rejects the same
  actions for the same reasons.

STATE MACHINE:
  PENDING -> PROCESSING (optional admin marker)
  PENDING/PROCESSING -> COMPLETED (sets payment date if absent)
  COMPLETED -> PENDING (explicit cancel; payment date kept)
  delete allowed from any status except COMPLETED

GUARDS:
  Every rejected action returns a TransitionError whose message is
  surfaced verbatim to the admin UI ("cannot delete completed
  settlement"), never a silent no-op.

TOTAL INVARIANT:
  TotalAmount == sum of item FinalAmount at all times. Every mutation
  here recomputes the total inside the same transaction as the item
  write; if the recompute fails, the edit fails with it.

SEE ALSO:
  - generator.go: Creates settlements in PENDING
  - errors.go: TransitionError and guard sentinels
*/
package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// Action is a lifecycle operation subject to status guards.
type Action string

const (
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionDelete   Action = "delete"
	ActionProcess  Action = "mark processing"
	ActionEdit     Action = "edit"
)

// allowedFrom is the single source of truth for which statuses permit
// which actions.
var allowedFrom = map[Action]map[SettlementStatus]bool{
	ActionComplete: {StatusPending: true, StatusProcessing: true},
	ActionCancel:   {StatusCompleted: true},
	ActionDelete:   {StatusPending: true, StatusProcessing: true, StatusFailed: true},
	ActionProcess:  {StatusPending: true},
	ActionEdit:     {StatusPending: true, StatusProcessing: true, StatusFailed: true},
}

// CanTransition reports whether the action is allowed from the status.
func CanTransition(action Action, from SettlementStatus) bool {
	return allowedFrom[action][from]
}

func guard(action Action, s *Settlement) error {
	if !CanTransition(action, s.Status) {
		return &TransitionError{SettlementID: s.ID, Action: action, From: s.Status}
	}
	return nil
}

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

// Lifecycle drives settlement transitions and guarded edits.
type Lifecycle struct {
	store Store
	now   func() time.Time
}

// NewLifecycle creates a lifecycle manager over the given store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

// Complete marks a settlement as paid. Allowed from PENDING or
// PROCESSING; sets the payment date when not already set. After this
// the settlement is immutable to regeneration, edits, and deletion.
func (l *Lifecycle) Complete(ctx context.Context, id string) (*Settlement, error) {
	now := l.now().UTC()
	err := l.store.WithTx(ctx, func(tx Store) error {
		s, err := getSettlement(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guard(ActionComplete, s); err != nil {
			return err
		}
		s.Status = StatusCompleted
		if s.PaymentDate == nil {
			s.PaymentDate = &now
		}
		s.UpdatedAt = now
		return tx.SaveSettlement(ctx, *s)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("settlement completed", "settlement_id", id)
	return l.store.GetSettlement(ctx, id)
}

// Cancel reopens a COMPLETED settlement back to PENDING. The payment
// date is deliberately kept for the record; the settlement becomes
// editable and regenerable again.
func (l *Lifecycle) Cancel(ctx context.Context, id string) (*Settlement, error) {
	now := l.now().UTC()
	err := l.store.WithTx(ctx, func(tx Store) error {
		s, err := getSettlement(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guard(ActionCancel, s); err != nil {
			return err
		}
		s.Status = StatusPending
		s.UpdatedAt = now
		return tx.SaveSettlement(ctx, *s)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("settlement cancelled back to pending", "settlement_id", id)
	return l.store.GetSettlement(ctx, id)
}

// MarkProcessing flags a PENDING settlement as being worked on.
func (l *Lifecycle) MarkProcessing(ctx context.Context, id string) (*Settlement, error) {
	now := l.now().UTC()
	err := l.store.WithTx(ctx, func(tx Store) error {
		s, err := getSettlement(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guard(ActionProcess, s); err != nil {
			return err
		}
		s.Status = StatusProcessing
		s.UpdatedAt = now
		return tx.SaveSettlement(ctx, *s)
	})
	if err != nil {
		return nil, err
	}
	return l.store.GetSettlement(ctx, id)
}

// Delete removes a non-completed settlement and cascades to its items.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	err := l.store.WithTx(ctx, func(tx Store) error {
		s, err := getSettlement(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guard(ActionDelete, s); err != nil {
			return err
		}
		return tx.DeleteSettlement(ctx, id)
	})
	if err != nil {
		return err
	}
	slog.Info("settlement deleted", "settlement_id", id)
	return nil
}

// UpdateNote sets the free-text note on a non-completed settlement.
func (l *Lifecycle) UpdateNote(ctx context.Context, id, note string) (*Settlement, error) {
	now := l.now().UTC()
	err := l.store.WithTx(ctx, func(tx Store) error {
		s, err := getSettlement(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guard(ActionEdit, s); err != nil {
			return err
		}
		s.Note = note
		s.UpdatedAt = now
		return tx.SaveSettlement(ctx, *s)
	})
	if err != nil {
		return nil, err
	}
	return l.store.GetSettlement(ctx, id)
}

// UpdateItemAmount sets or clears (nil) the manual override on one
// line item and recomputes the parent total in the same transaction.
func (l *Lifecycle) UpdateItemAmount(ctx context.Context, itemID string, adjusted *decimal.Decimal) (*Settlement, error) {
	if adjusted != nil && adjusted.IsNegative() {
		return nil, ErrNegativeAmount
	}

	now := l.now().UTC()
	var settlementID string
	err := l.store.WithTx(ctx, func(tx Store) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}
		settlementID = item.SettlementID

		s, err := getSettlement(ctx, tx, item.SettlementID)
		if err != nil {
			return err
		}
		if err := guard(ActionEdit, s); err != nil {
			return err
		}

		item.AdjustedAmount = adjusted
		if err := tx.SaveItem(ctx, *item); err != nil {
			return err
		}
		return recomputeTotal(ctx, tx, item.SettlementID, now)
	})
	if err != nil {
		return nil, err
	}
	return l.store.GetSettlement(ctx, settlementID)
}

// SetVideoRate stores a video-level rate override (nil clears it) and
// re-resolves the base amount of every open settlement item generated
// from that video's submissions, recomputing each affected total.
// Completed settlements keep the rates they were paid at.
func (l *Lifecycle) SetVideoRate(ctx context.Context, videoID string, customRate *decimal.Decimal) (*Video, error) {
	if customRate != nil && customRate.IsNegative() {
		return nil, ErrNegativeAmount
	}

	now := l.now().UTC()
	var updated *Video
	err := l.store.WithTx(ctx, func(tx Store) error {
		video, err := tx.GetVideo(ctx, videoID)
		if err != nil {
			return err
		}
		if video == nil {
			return ErrVideoNotFound
		}
		video.CustomRate = customRate
		if err := tx.SaveVideo(ctx, *video); err != nil {
			return err
		}

		items, err := tx.ListOpenItemsByVideo(ctx, videoID)
		if err != nil {
			return err
		}

		touched := make(map[string]bool)
		for _, item := range items {
			s, err := getSettlement(ctx, tx, item.SettlementID)
			if err != nil {
				return err
			}
			rate := ResolveRate(*s.Star, *video)
			if !rate.Resolved() {
				// Clearing the override for a creator with no fallback
				// rate leaves the item at its last generated amount;
				// rates never silently vanish mid-cycle.
				continue
			}
			item.BaseAmount = rate.Amount
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
			touched[item.SettlementID] = true
		}

		for settlementID := range touched {
			if err := recomputeTotal(ctx, tx, settlementID, now); err != nil {
				return err
			}
		}

		updated = video
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func getSettlement(ctx context.Context, tx Store, id string) (*Settlement, error) {
	s, err := tx.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSettlementNotFound
	}
	return s, nil
}

// recomputeTotal rewrites the parent total from its items. Must run in
// the same transaction as the item write that made it stale.
func recomputeTotal(ctx context.Context, tx Store, settlementID string, now time.Time) error {
	items, err := tx.GetItems(ctx, settlementID)
	if err != nil {
		return err
	}
	s, err := getSettlement(ctx, tx, settlementID)
	if err != nil {
		return err
	}
	s.TotalAmount = SumItems(items)
	s.UpdatedAt = now
	return tx.SaveSettlement(ctx, *s)
}
