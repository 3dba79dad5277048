/*
scenarios.go - Demo scenario data loaders

PURPOSE:
  Provides pre-built demo scenarios for testing and demonstration.
  Each scenario resets the database and seeds grades, creators,
  videos, submissions, and settings into a known state, so a demo or a
  manual test always starts from the same place.

SCENARIOS:
  1. basic-generation: Three-tier grade setup, one creator per tier,
     approved submissions in the current month. Running Generate shows
     the plain grade-rate path.
  2. video-override: One creator whose premium video carries a custom
     rate above their grade rate. Shows the rate priority chain.
  3. missing-rate: A creator with no grade and no personal rate.
     Generation skips them with a warning instead of paying zero.

USAGE:
  POST /api/scenarios/load
  {"scenarioId": "video-override"}

ADDING A SCENARIO:
  1. Add a ScenarioDTO to scenarioList
  2. Write a load<Name> function seeding the store
  3. Add a case to LoadScenario

SEE ALSO:
  - handlers.go: writeData/writeError helpers
  - server.go: /api/scenarios routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starworks/settlement-engine/settlement"
)

// scenarioList is the catalog shown by GET /api/scenarios.
var scenarioList = []ScenarioDTO{
	{
		ID:          "basic-generation",
		Name:        "Basic Generation",
		Description: "Three grades, three creators, approved submissions in the current month. Generate to see grade-rate settlements.",
	},
	{
		ID:          "video-override",
		Name:        "Video Rate Override",
		Description: "A premium video with a custom rate above the creator's grade rate. Shows the video > creator > grade priority chain.",
	},
	{
		ID:          "missing-rate",
		Name:        "Missing Rate",
		Description: "A creator with no grade and no personal rate. Generation skips them with a warning instead of defaulting to zero.",
	},
}

// ListScenarios returns the scenario catalog and the currently loaded one.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"scenarios": scenarioList,
		"current":   h.currentScenario,
	})
}

// LoadScenario resets the database and seeds the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to reset database")
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "basic-generation":
		err = loadBasicGeneration(ctx, h.Store)
	case "video-override":
		err = loadVideoOverride(ctx, h.Store)
	case "missing-rate":
		err = loadMissingRate(ctx, h.Store)
	default:
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown scenario: "+req.ScenarioID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load scenario")
		return
	}

	h.currentScenario = req.ScenarioID
	writeData(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase wipes all data. Dev/demo use only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to reset database")
		return
	}
	h.currentScenario = ""
	writeData(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedGrades writes the standard three-tier grade ladder.
func seedGrades(ctx context.Context, store settlement.Store) error {
	grades := []settlement.Grade{
		{ID: "grade-bronze", Name: "Bronze", BaseRate: decimal.NewFromInt(20000), Color: "#cd7f32", SortOrder: 1},
		{ID: "grade-silver", Name: "Silver", BaseRate: decimal.NewFromInt(40000), Color: "#c0c0c0", SortOrder: 2},
		{ID: "grade-gold", Name: "Gold", BaseRate: decimal.NewFromInt(80000), Color: "#ffd700", SortOrder: 3},
	}
	for _, g := range grades {
		if err := store.SaveGrade(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// seedApproved writes a video and one approved submission inside the
// current month.
func seedApproved(ctx context.Context, store settlement.Store, videoID, title, ownerID string, customRate *decimal.Decimal, version int) error {
	if err := store.SaveVideo(ctx, settlement.Video{
		ID:         videoID,
		Title:      title,
		OwnerID:    ownerID,
		Category:   "shorts",
		Status:     "PUBLISHED",
		CustomRate: customRate,
	}); err != nil {
		return err
	}
	now := time.Now().UTC()
	midMonth := time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, time.UTC)
	return store.SaveSubmission(ctx, settlement.Submission{
		ID:        fmt.Sprintf("sub-%s-v%d", videoID, version),
		VideoID:   videoID,
		Version:   version,
		Status:    settlement.SubmissionApproved,
		CreatedAt: midMonth,
	})
}

func loadBasicGeneration(ctx context.Context, store settlement.Store) error {
	if err := seedGrades(ctx, store); err != nil {
		return err
	}

	bronze, silver, gold := "grade-bronze", "grade-silver", "grade-gold"
	stars := []settlement.Star{
		{ID: "star-ha-eun", Name: "Ha-eun Kim", Email: "haeun@starworks.example", GradeID: &bronze},
		{ID: "star-ji-ho", Name: "Ji-ho Park", Email: "jiho@starworks.example", GradeID: &silver},
		{ID: "star-seo-yeon", Name: "Seo-yeon Lee", Email: "seoyeon@starworks.example", GradeID: &gold},
	}
	for _, s := range stars {
		if err := store.SaveStar(ctx, s); err != nil {
			return err
		}
	}

	videos := []struct {
		id, title, owner string
	}{
		{"video-morning-vlog", "Morning Routine Vlog", "star-ha-eun"},
		{"video-cooking-ep4", "Home Cooking Ep. 4", "star-ji-ho"},
		{"video-dance-cover", "Dance Cover Special", "star-seo-yeon"},
		{"video-qna-night", "Late Night Q&A", "star-seo-yeon"},
	}
	for _, v := range videos {
		if err := seedApproved(ctx, store, v.id, v.title, v.owner, nil, 1); err != nil {
			return err
		}
	}

	return store.SaveSetting(ctx, settlement.SystemSetting{
		Key:   settlement.SettingAIToolSupportEnabled,
		Value: "false",
		Label: "AI tool support fee enabled",
	})
}

func loadVideoOverride(ctx context.Context, store settlement.Store) error {
	if err := seedGrades(ctx, store); err != nil {
		return err
	}

	silver := "grade-silver"
	if err := store.SaveStar(ctx, settlement.Star{
		ID: "star-min-jun", Name: "Min-jun Choi", Email: "minjun@starworks.example", GradeID: &silver,
	}); err != nil {
		return err
	}

	// Regular video pays the Silver grade rate (40000); the brand
	// collaboration carries a premium custom rate (60000).
	premium := decimal.NewFromInt(60000)
	if err := seedApproved(ctx, store, "video-daily-short", "Daily Short", "star-min-jun", nil, 1); err != nil {
		return err
	}
	return seedApproved(ctx, store, "video-brand-collab", "Brand Collaboration", "star-min-jun", &premium, 2)
}

func loadMissingRate(ctx context.Context, store settlement.Store) error {
	if err := seedGrades(ctx, store); err != nil {
		return err
	}

	gold := "grade-gold"
	if err := store.SaveStar(ctx, settlement.Star{
		ID: "star-seo-yeon", Name: "Seo-yeon Lee", GradeID: &gold,
	}); err != nil {
		return err
	}
	// No grade, no personal rate. Generation must skip, never pay zero.
	if err := store.SaveStar(ctx, settlement.Star{
		ID: "star-new-trainee", Name: "Da-som Jung",
	}); err != nil {
		return err
	}

	if err := seedApproved(ctx, store, "video-debut-stage", "Debut Stage", "star-seo-yeon", nil, 1); err != nil {
		return err
	}
	return seedApproved(ctx, store, "video-practice-log", "Practice Log", "star-new-trainee", nil, 1)
}
