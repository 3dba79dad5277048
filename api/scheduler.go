/*
scheduler.go - Automated monthly generation scheduler

PURPOSE:
  Periodically checks whether the previous month's settlements have
  been generated and runs generation when they have not. Lets the
  platform produce payouts on the 1st without an admin clicking the
  button, while leaving the manual endpoint as the primary path.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Targets the previous calendar month relative to the current time
  - Generation is idempotent, so a redundant run is harmless: existing
    non-completed settlements are replaced with identical content and
    completed ones are skipped
  - Skips the run entirely when the previous month already has
    settlements, to avoid churning updated_at timestamps

CONFIGURATION:
  - CheckInterval: How often to check (default: 6 hours)
  - Enabled: Whether the scheduler is active (default: false; enabled
    by the -auto-generate flag)

USAGE:
  scheduler := NewGenerationScheduler(store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Generate endpoint (manual generation)
  - ../settlement/generator.go: The generation algorithm
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starworks/settlement-engine/settlement"
)

// GenerationScheduler runs settlement generation for the previous
// month when it has not happened yet.
type GenerationScheduler struct {
	Store         settlement.Store
	Generator     *settlement.Generator
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewGenerationScheduler creates a scheduler over the given store.
func NewGenerationScheduler(store settlement.Store) *GenerationScheduler {
	return &GenerationScheduler{
		Store:         store,
		Generator:     settlement.NewGenerator(store),
		CheckInterval: 6 * time.Hour,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (gs *GenerationScheduler) Start() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if !gs.Enabled {
		slog.Info("generation scheduler disabled, not starting")
		return
	}

	gs.ticker = time.NewTicker(gs.CheckInterval)
	gs.wg.Add(1)

	go gs.run()

	slog.Info("generation scheduler started", "check_interval", gs.CheckInterval)
}

// Stop stops the scheduler.
func (gs *GenerationScheduler) Stop() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.ticker != nil {
		gs.ticker.Stop()
		close(gs.stop)
		gs.wg.Wait()
		slog.Info("generation scheduler stopped")
	}
}

func (gs *GenerationScheduler) run() {
	defer gs.wg.Done()

	// Run immediately on start
	gs.checkAndGenerate()

	for {
		select {
		case <-gs.ticker.C:
			gs.checkAndGenerate()
		case <-gs.stop:
			return
		}
	}
}

func (gs *GenerationScheduler) checkAndGenerate() {
	ctx := context.Background()
	year, month := settlement.PreviousMonth(time.Now().UTC())

	// Any settlement already present for the period means either an
	// earlier scheduler run or an admin handled it. Don't re-run;
	// regeneration is for explicit admin requests.
	_, existing, err := gs.Store.ListSettlements(ctx, settlement.SettlementFilter{
		Year: year, Month: month, PageSize: 1,
	})
	if err != nil {
		slog.Error("scheduler period check failed", "year", year, "month", month, "error", err)
		return
	}
	if existing > 0 {
		return
	}

	result, err := gs.Generator.Generate(ctx, year, month)
	if err != nil {
		slog.Error("scheduled generation failed", "year", year, "month", month, "error", err)
		return
	}
	settlementsGenerated.Add(float64(len(result.Settlements)))
	slog.Info("scheduled generation completed",
		"year", year, "month", month,
		"created", len(result.Settlements),
		"skipped", len(result.Warnings.Skipped),
		"failed", len(result.Warnings.Failed))
}

// RunNow triggers an immediate check (for testing/admin).
func (gs *GenerationScheduler) RunNow() {
	gs.checkAndGenerate()
}
