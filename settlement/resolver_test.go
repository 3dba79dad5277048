package settlement_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/starworks/settlement-engine/settlement"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func gradedStar(rate int64) settlement.Star {
	gradeID := "grade-a"
	return settlement.Star{
		ID:      "star-1",
		Name:    "Ha-eun Kim",
		GradeID: &gradeID,
		Grade:   &settlement.Grade{ID: gradeID, Name: "A", BaseRate: dec(rate)},
	}
}

// =============================================================================
// RATE PRIORITY CHAIN
// =============================================================================

func TestResolveRate_VideoRateWinsOverEverything(t *testing.T) {
	// GIVEN: A star with both a personal rate and a grade rate
	star := gradedStar(40000)
	star.BaseRate = decPtr(50000)
	video := settlement.Video{ID: "v1", CustomRate: decPtr(60000)}

	// WHEN: Resolving the rate
	rate := settlement.ResolveRate(star, video)

	// THEN: The video-level override wins
	assert.True(t, rate.Resolved())
	assert.Equal(t, settlement.SourceVideo, rate.Source)
	assert.True(t, dec(60000).Equal(rate.Amount))
}

func TestResolveRate_CreatorRateBeatsGrade(t *testing.T) {
	star := gradedStar(40000)
	star.BaseRate = decPtr(50000)

	rate := settlement.ResolveRate(star, settlement.Video{ID: "v1"})

	assert.Equal(t, settlement.SourceCreator, rate.Source)
	assert.True(t, dec(50000).Equal(rate.Amount))
}

func TestResolveRate_GradeRateAsFallback(t *testing.T) {
	rate := settlement.ResolveRate(gradedStar(40000), settlement.Video{ID: "v1"})

	assert.Equal(t, settlement.SourceGrade, rate.Source)
	assert.True(t, dec(40000).Equal(rate.Amount))
}

func TestResolveRate_NoRateAnywhereIsNone(t *testing.T) {
	// GIVEN: A star with no grade and no personal rate
	star := settlement.Star{ID: "star-2", Name: "Da-som Jung"}

	rate := settlement.ResolveRate(star, settlement.Video{ID: "v1"})

	// THEN: The result is NONE, never a silent zero
	assert.False(t, rate.Resolved())
	assert.Equal(t, settlement.SourceNone, rate.Source)
}

func TestResolveRate_ZeroVideoRateIsStillAnExplicitRate(t *testing.T) {
	// An explicit zero override means "pay nothing for this video",
	// which is different from an unconfigured rate.
	star := gradedStar(40000)
	video := settlement.Video{ID: "v1", CustomRate: decPtr(0)}

	rate := settlement.ResolveRate(star, video)

	assert.True(t, rate.Resolved())
	assert.Equal(t, settlement.SourceVideo, rate.Source)
	assert.True(t, rate.Amount.IsZero())
}

// =============================================================================
// ITEM AMOUNT SEMANTICS
// =============================================================================

func TestFinalAmount_PrefersAdjustment(t *testing.T) {
	item := settlement.SettlementItem{BaseAmount: dec(40000)}
	assert.True(t, dec(40000).Equal(item.FinalAmount()))

	item.AdjustedAmount = decPtr(35000)
	assert.True(t, dec(35000).Equal(item.FinalAmount()))
}

func TestSumItems_UsesFinalAmounts(t *testing.T) {
	items := []settlement.SettlementItem{
		{BaseAmount: dec(40000)},
		{BaseAmount: dec(40000), AdjustedAmount: decPtr(10000)},
		{BaseAmount: dec(20000)},
	}
	assert.True(t, dec(70000).Equal(settlement.SumItems(items)))
}
