package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starworks/settlement-engine/settlement"
	"github.com/starworks/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func seedStarWithGrade(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveGrade(ctx, settlement.Grade{
		ID: "grade-silver", Name: "Silver", BaseRate: dec(40000), SortOrder: 2,
	}))
	gradeID := "grade-silver"
	require.NoError(t, s.SaveStar(ctx, settlement.Star{
		ID: "star-1", Name: "Ji-ho Park", Email: "jiho@starworks.example", GradeID: &gradeID,
	}))
}

func newSettlement(id, starID string, year, month int, total int64) settlement.Settlement {
	now := time.Now().UTC().Truncate(time.Second)
	return settlement.Settlement{
		ID:          id,
		StarID:      starID,
		Year:        year,
		Month:       month,
		TotalAmount: dec(total),
		Status:      settlement.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// =============================================================================
// STARS AND GRADES
// =============================================================================

func TestStore_StarRoundTripPopulatesGrade(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)

	star, err := s.GetStar(context.Background(), "star-1")
	require.NoError(t, err)
	require.NotNil(t, star)
	assert.Equal(t, "Ji-ho Park", star.Name)
	require.NotNil(t, star.Grade)
	assert.Equal(t, "Silver", star.Grade.Name)
	assert.True(t, dec(40000).Equal(star.Grade.BaseRate))
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	star, err := s.GetStar(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, star)

	st, err := s.GetSettlement(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, st)

	item, err := s.GetItem(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestStore_DeleteGradeUnassignsMembers(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteGrade(ctx, "grade-silver"))

	star, err := s.GetStar(ctx, "star-1")
	require.NoError(t, err)
	require.NotNil(t, star)
	assert.Nil(t, star.GradeID)
	assert.Nil(t, star.Grade)

	grade, err := s.GetGrade(ctx, "grade-silver")
	require.NoError(t, err)
	assert.Nil(t, grade)
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func TestStore_ListApprovedSubmissionsFiltersStatusAndWindow(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveVideo(ctx, settlement.Video{
		ID: "video-1", Title: "Video 1", OwnerID: "star-1", CustomRate: decPtr(60000),
	}))

	in := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	out := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSubmission(ctx, settlement.Submission{
		ID: "sub-in", VideoID: "video-1", Version: 1,
		Status: settlement.SubmissionApproved, CreatedAt: in,
	}))
	require.NoError(t, s.SaveSubmission(ctx, settlement.Submission{
		ID: "sub-late", VideoID: "video-1", Version: 2,
		Status: settlement.SubmissionApproved, CreatedAt: out,
	}))
	require.NoError(t, s.SaveSubmission(ctx, settlement.Submission{
		ID: "sub-rejected", VideoID: "video-1", Version: 3,
		Status: settlement.SubmissionRejected, CreatedAt: in,
	}))

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	subs, err := s.ListApprovedSubmissions(ctx, from, out)
	require.NoError(t, err)

	require.Len(t, subs, 1)
	assert.Equal(t, "sub-in", subs[0].ID)
	require.NotNil(t, subs[0].Video)
	assert.Equal(t, "star-1", subs[0].Video.OwnerID)
	require.NotNil(t, subs[0].Video.CustomRate)
	assert.True(t, dec(60000).Equal(*subs[0].Video.CustomRate))
}

// =============================================================================
// SETTLEMENTS AND ITEMS
// =============================================================================

func TestStore_SettlementRoundTripWithItems(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	st := newSettlement("set-1", "star-1", 2025, 3, 80000)
	require.NoError(t, s.SaveSettlement(ctx, st))
	require.NoError(t, s.InsertItems(ctx, []settlement.SettlementItem{
		{ID: "item-1", SettlementID: "set-1", ItemType: settlement.ItemVideoSubmission,
			BaseAmount: dec(40000), Description: "Video 1 (v1)", CreatedAt: st.CreatedAt},
		{ID: "item-2", SettlementID: "set-1", ItemType: settlement.ItemVideoSubmission,
			BaseAmount: dec(40000), AdjustedAmount: decPtr(30000), CreatedAt: st.CreatedAt.Add(time.Second)},
	}))

	got, err := s.GetSettlement(ctx, "set-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, dec(80000).Equal(got.TotalAmount))
	require.NotNil(t, got.Star)
	assert.Equal(t, "Ji-ho Park", got.Star.Name)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "item-1", got.Items[0].ID)
	require.NotNil(t, got.Items[1].AdjustedAmount)
	assert.True(t, dec(30000).Equal(*got.Items[1].AdjustedAmount))
}

func TestStore_GetSettlementForPeriod(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveSettlement(ctx, newSettlement("set-1", "star-1", 2025, 3, 0)))

	got, err := s.GetSettlementForPeriod(ctx, "star-1", 2025, 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "set-1", got.ID)

	none, err := s.GetSettlementForPeriod(ctx, "star-1", 2025, 4)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_UniqueStarPeriodEnforced(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveSettlement(ctx, newSettlement("set-1", "star-1", 2025, 3, 0)))

	// A second row for the same creator and month must be refused by
	// the database itself.
	err := s.SaveSettlement(ctx, newSettlement("set-2", "star-1", 2025, 3, 0))
	assert.Error(t, err)
}

func TestStore_DeleteSettlementCascadesToItems(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	st := newSettlement("set-1", "star-1", 2025, 3, 40000)
	require.NoError(t, s.SaveSettlement(ctx, st))
	require.NoError(t, s.InsertItems(ctx, []settlement.SettlementItem{
		{ID: "item-1", SettlementID: "set-1", ItemType: settlement.ItemVideoSubmission,
			BaseAmount: dec(40000), CreatedAt: st.CreatedAt},
	}))

	require.NoError(t, s.DeleteSettlement(ctx, "set-1"))

	items, err := s.GetItems(ctx, "set-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_ListSettlementsFilterAndPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveGrade(ctx, settlement.Grade{ID: "g", Name: "G", BaseRate: dec(1)}))
	for i, name := range []string{"Ana", "Ben", "Cho"} {
		require.NoError(t, s.SaveStar(ctx, settlement.Star{ID: name, Name: name}))
		st := newSettlement("set-"+name, name, 2025, 3, int64(i))
		require.NoError(t, s.SaveSettlement(ctx, st))
	}
	done := newSettlement("set-old", "Ana", 2025, 2, 0)
	done.Status = settlement.StatusCompleted
	require.NoError(t, s.SaveSettlement(ctx, done))

	// Filter by period
	got, total, err := s.ListSettlements(ctx, settlement.SettlementFilter{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, got, 3)
	assert.Equal(t, "Ana", got[0].StarID) // ordered by star name inside the period

	// Filter by status
	got, total, err = s.ListSettlements(ctx, settlement.SettlementFilter{Status: settlement.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "set-old", got[0].ID)

	// Paging: total counts all matches, the page is clipped
	got, total, err = s.ListSettlements(ctx, settlement.SettlementFilter{
		Year: 2025, Month: 3, Page: 2, PageSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, got, 1)
}

func TestStore_ListOpenItemsByVideoExcludesCompleted(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveVideo(ctx, settlement.Video{ID: "video-1", Title: "V1", OwnerID: "star-1"}))
	require.NoError(t, s.SaveSubmission(ctx, settlement.Submission{
		ID: "sub-1", VideoID: "video-1", Version: 1,
		Status: settlement.SubmissionApproved, CreatedAt: time.Now().UTC(),
	}))

	open := newSettlement("set-open", "star-1", 2025, 3, 40000)
	require.NoError(t, s.SaveSettlement(ctx, open))
	paid := newSettlement("set-paid", "star-1", 2025, 2, 40000)
	paid.Status = settlement.StatusCompleted
	require.NoError(t, s.SaveSettlement(ctx, paid))

	subID := "sub-1"
	require.NoError(t, s.InsertItems(ctx, []settlement.SettlementItem{
		{ID: "item-open", SettlementID: "set-open", ItemType: settlement.ItemVideoSubmission,
			BaseAmount: dec(40000), SubmissionID: &subID, CreatedAt: open.CreatedAt},
		{ID: "item-paid", SettlementID: "set-paid", ItemType: settlement.ItemVideoSubmission,
			BaseAmount: dec(40000), SubmissionID: &subID, CreatedAt: paid.CreatedAt},
	}))

	items, err := s.ListOpenItemsByVideo(ctx, "video-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-open", items[0].ID)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestStore_SettingUpsertKeepsLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSetting(ctx, settlement.SystemSetting{
		Key: settlement.SettingAIToolSupportFee, Value: "15000", Label: "AI tool support fee",
	}))
	// Value-only update must not wipe the label
	require.NoError(t, s.SaveSetting(ctx, settlement.SystemSetting{
		Key: settlement.SettingAIToolSupportFee, Value: "20000",
	}))

	got, err := s.GetSetting(ctx, settlement.SettingAIToolSupportFee)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "20000", got.Value)
	assert.Equal(t, "AI tool support fee", got.Label)
	assert.True(t, dec(20000).Equal(got.DecimalValue()))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx settlement.Store) error {
		if err := tx.SaveSettlement(ctx, newSettlement("set-1", "star-1", 2025, 3, 0)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetSettlement(ctx, "set-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_WithTxCommitsOnNil(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx settlement.Store) error {
		st := newSettlement("set-1", "star-1", 2025, 3, 40000)
		if err := tx.SaveSettlement(ctx, st); err != nil {
			return err
		}
		return tx.InsertItems(ctx, []settlement.SettlementItem{
			{ID: "item-1", SettlementID: "set-1", ItemType: settlement.ItemVideoSubmission,
				BaseAmount: dec(40000), CreatedAt: st.CreatedAt},
		})
	})
	require.NoError(t, err)

	got, err := s.GetSettlement(ctx, "set-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Items, 1)
}

// =============================================================================
// END-TO-END THROUGH THE DOMAIN LAYER
// =============================================================================

func TestStore_GenerateAndCompleteAgainstSQLite(t *testing.T) {
	s := newTestStore(t)
	seedStarWithGrade(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveVideo(ctx, settlement.Video{ID: "video-1", Title: "Video 1", OwnerID: "star-1"}))
	require.NoError(t, s.SaveSubmission(ctx, settlement.Submission{
		ID: "sub-1", VideoID: "video-1", Version: 1,
		Status:    settlement.SubmissionApproved,
		CreatedAt: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}))

	gen := settlement.NewGenerator(s)
	result, err := gen.Generate(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, result.Settlements, 1)
	assert.True(t, dec(40000).Equal(result.Settlements[0].TotalAmount))

	// Regeneration replaces rather than duplicates, through real SQL
	result, err = gen.Generate(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, result.Settlements, 1)
	got, err := s.GetSettlement(ctx, result.Settlements[0].ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	lc := settlement.NewLifecycle(s)
	completed, err := lc.Complete(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusCompleted, completed.Status)

	err = lc.Delete(ctx, got.ID)
	assert.True(t, settlement.IsStateGuard(err))
}
