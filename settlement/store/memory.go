/*
Package store provides an in-memory settlement.Store implementation.

PURPOSE:
  Backs unit tests and demo scenarios without a database. Mirrors the
  SQLite store's semantics: (nil, nil) for missing rows, populated
  relations on reads, cascade on settlement delete, and transactional
  WithTx with rollback on error (simulated via snapshot + restore).

CONCURRENCY:
  A single RWMutex guards all maps. WithTx holds the write lock for the
  whole function, which also serializes concurrent generations the way
  row locks do in the SQLite store.

SEE ALSO:
  - ../store.go: Interface definition
  - ../../store/sqlite/sqlite.go: Production implementation
*/
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starworks/settlement-engine/settlement"
)

// Memory is an in-memory settlement.Store.
type Memory struct {
	mu sync.RWMutex

	stars       map[string]settlement.Star
	grades      map[string]settlement.Grade
	videos      map[string]settlement.Video
	submissions map[string]settlement.Submission
	settlements map[string]settlement.Settlement
	items       map[string]settlement.SettlementItem
	settings    map[string]settlement.SystemSetting

	// Insertion order for deterministic item listings.
	itemSeq map[string]int64
	nextSeq int64
}

var _ settlement.Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.stars = make(map[string]settlement.Star)
	m.grades = make(map[string]settlement.Grade)
	m.videos = make(map[string]settlement.Video)
	m.submissions = make(map[string]settlement.Submission)
	m.settlements = make(map[string]settlement.Settlement)
	m.items = make(map[string]settlement.SettlementItem)
	m.settings = make(map[string]settlement.SystemSetting)
	m.itemSeq = make(map[string]int64)
	m.nextSeq = 0
}

// =============================================================================
// STARS AND GRADES
// =============================================================================

func (m *Memory) SaveStar(_ context.Context, star settlement.Star) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveStarLocked(star)
}

func (m *Memory) saveStarLocked(star settlement.Star) error {
	star.Grade = nil // Relations are populated on read, never stored
	if star.CreatedAt.IsZero() {
		star.CreatedAt = time.Now().UTC()
	}
	m.stars[star.ID] = star
	return nil
}

func (m *Memory) GetStar(_ context.Context, id string) (*settlement.Star, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getStarLocked(id)
}

func (m *Memory) getStarLocked(id string) (*settlement.Star, error) {
	star, ok := m.stars[id]
	if !ok {
		return nil, nil
	}
	m.populateGrade(&star)
	return &star, nil
}

func (m *Memory) populateGrade(star *settlement.Star) {
	if star.GradeID == nil {
		return
	}
	if grade, ok := m.grades[*star.GradeID]; ok {
		star.Grade = &grade
	}
}

func (m *Memory) ListStars(_ context.Context) ([]settlement.Star, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stars := make([]settlement.Star, 0, len(m.stars))
	for _, star := range m.stars {
		m.populateGrade(&star)
		stars = append(stars, star)
	}
	sort.Slice(stars, func(i, j int) bool {
		if stars[i].Name != stars[j].Name {
			return stars[i].Name < stars[j].Name
		}
		return stars[i].ID < stars[j].ID
	})
	return stars, nil
}

func (m *Memory) SaveGrade(_ context.Context, grade settlement.Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = time.Now().UTC()
	}
	m.grades[grade.ID] = grade
	return nil
}

func (m *Memory) GetGrade(_ context.Context, id string) (*settlement.Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grade, ok := m.grades[id]
	if !ok {
		return nil, nil
	}
	return &grade, nil
}

func (m *Memory) ListGrades(_ context.Context) ([]settlement.Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grades := make([]settlement.Grade, 0, len(m.grades))
	for _, grade := range m.grades {
		grades = append(grades, grade)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].SortOrder < grades[j].SortOrder })
	return grades, nil
}

func (m *Memory) DeleteGrade(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.grades, id)
	// Members become unassigned, never deleted.
	for starID, star := range m.stars {
		if star.GradeID != nil && *star.GradeID == id {
			star.GradeID = nil
			m.stars[starID] = star
		}
	}
	return nil
}

// =============================================================================
// VIDEOS AND SUBMISSIONS
// =============================================================================

func (m *Memory) SaveVideo(_ context.Context, video settlement.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveVideoLocked(video)
}

func (m *Memory) saveVideoLocked(video settlement.Video) error {
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now().UTC()
	}
	m.videos[video.ID] = video
	return nil
}

func (m *Memory) GetVideo(_ context.Context, id string) (*settlement.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getVideoLocked(id)
}

func (m *Memory) getVideoLocked(id string) (*settlement.Video, error) {
	video, ok := m.videos[id]
	if !ok {
		return nil, nil
	}
	return &video, nil
}

func (m *Memory) SaveSubmission(_ context.Context, sub settlement.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.Video = nil
	m.submissions[sub.ID] = sub
	return nil
}

func (m *Memory) ListApprovedSubmissions(_ context.Context, from, to time.Time) ([]settlement.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subs []settlement.Submission
	for _, sub := range m.submissions {
		if sub.Status != settlement.SubmissionApproved {
			continue
		}
		if sub.CreatedAt.Before(from) || !sub.CreatedAt.Before(to) {
			continue
		}
		if video, ok := m.videos[sub.VideoID]; ok {
			sub.Video = &video
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

// =============================================================================
// SYSTEM SETTINGS
// =============================================================================

func (m *Memory) GetSetting(_ context.Context, key string) (*settlement.SystemSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	setting, ok := m.settings[key]
	if !ok {
		return nil, nil
	}
	return &setting, nil
}

func (m *Memory) SaveSetting(_ context.Context, setting settlement.SystemSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now().UTC()
	}
	m.settings[setting.Key] = setting
	return nil
}

func (m *Memory) ListSettings(_ context.Context) ([]settlement.SystemSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	settings := make([]settlement.SystemSetting, 0, len(m.settings))
	for _, s := range m.settings {
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (m *Memory) SaveSettlement(_ context.Context, s settlement.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSettlementLocked(s)
}

func (m *Memory) saveSettlementLocked(s settlement.Settlement) error {
	s.Star = nil
	s.Items = nil
	m.settlements[s.ID] = s
	return nil
}

func (m *Memory) GetSettlement(_ context.Context, id string) (*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSettlementLocked(id)
}

func (m *Memory) getSettlementLocked(id string) (*settlement.Settlement, error) {
	s, ok := m.settlements[id]
	if !ok {
		return nil, nil
	}
	if star, _ := m.getStarLocked(s.StarID); star != nil {
		s.Star = star
	}
	s.Items = m.itemsForLocked(id)
	return &s, nil
}

func (m *Memory) GetSettlementForPeriod(_ context.Context, starID string, year, month int) (*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSettlementForPeriodLocked(starID, year, month)
}

func (m *Memory) getSettlementForPeriodLocked(starID string, year, month int) (*settlement.Settlement, error) {
	for id, s := range m.settlements {
		if s.StarID == starID && s.Year == year && s.Month == month {
			return m.getSettlementLocked(id)
		}
	}
	return nil, nil
}

func (m *Memory) ListSettlements(_ context.Context, filter settlement.SettlementFilter) ([]settlement.Settlement, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []settlement.Settlement
	for _, s := range m.settlements {
		if filter.Year != 0 && s.Year != filter.Year {
			continue
		}
		if filter.Month != 0 && s.Month != filter.Month {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.StarID != "" && s.StarID != filter.StarID {
			continue
		}
		if star, _ := m.getStarLocked(s.StarID); star != nil {
			s.Star = star
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		nameA, nameB := a.StarID, b.StarID
		if a.Star != nil && b.Star != nil {
			nameA, nameB = a.Star.Name, b.Star.Name
		}
		if !strings.EqualFold(nameA, nameB) {
			return nameA < nameB
		}
		return a.ID < b.ID
	})

	total := len(matched)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * filter.PageSize
		if start >= total {
			return nil, total, nil
		}
		end := start + filter.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (m *Memory) DeleteSettlement(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteSettlementLocked(id)
}

func (m *Memory) deleteSettlementLocked(id string) error {
	delete(m.settlements, id)
	for itemID, item := range m.items {
		if item.SettlementID == id {
			delete(m.items, itemID)
			delete(m.itemSeq, itemID)
		}
	}
	return nil
}

// =============================================================================
// SETTLEMENT ITEMS
// =============================================================================

func (m *Memory) InsertItems(_ context.Context, items []settlement.SettlementItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertItemsLocked(items)
}

func (m *Memory) insertItemsLocked(items []settlement.SettlementItem) error {
	for _, item := range items {
		m.nextSeq++
		m.items[item.ID] = item
		m.itemSeq[item.ID] = m.nextSeq
	}
	return nil
}

func (m *Memory) DeleteItemsBySettlement(_ context.Context, settlementID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteItemsLocked(settlementID)
}

func (m *Memory) deleteItemsLocked(settlementID string) error {
	for itemID, item := range m.items {
		if item.SettlementID == settlementID {
			delete(m.items, itemID)
			delete(m.itemSeq, itemID)
		}
	}
	return nil
}

func (m *Memory) GetItems(_ context.Context, settlementID string) ([]settlement.SettlementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsForLocked(settlementID), nil
}

func (m *Memory) itemsForLocked(settlementID string) []settlement.SettlementItem {
	var items []settlement.SettlementItem
	for _, item := range m.items {
		if item.SettlementID == settlementID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return m.itemSeq[items[i].ID] < m.itemSeq[items[j].ID]
	})
	return items
}

func (m *Memory) GetItem(_ context.Context, itemID string) (*settlement.SettlementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemLocked(itemID)
}

func (m *Memory) getItemLocked(itemID string) (*settlement.SettlementItem, error) {
	item, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *Memory) SaveItem(_ context.Context, item settlement.SettlementItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveItemLocked(item)
}

func (m *Memory) saveItemLocked(item settlement.SettlementItem) error {
	if _, ok := m.itemSeq[item.ID]; !ok {
		m.nextSeq++
		m.itemSeq[item.ID] = m.nextSeq
	}
	m.items[item.ID] = item
	return nil
}

func (m *Memory) ListOpenItemsByVideo(_ context.Context, videoID string) ([]settlement.SettlementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openItemsByVideoLocked(videoID)
}

func (m *Memory) openItemsByVideoLocked(videoID string) ([]settlement.SettlementItem, error) {
	var items []settlement.SettlementItem
	for _, item := range m.items {
		if item.SubmissionID == nil {
			continue
		}
		sub, ok := m.submissions[*item.SubmissionID]
		if !ok || sub.VideoID != videoID {
			continue
		}
		parent, ok := m.settlements[item.SettlementID]
		if !ok || parent.Status == settlement.StatusCompleted {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return m.itemSeq[items[i].ID] < m.itemSeq[items[j].ID]
	})
	return items, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against a transactional view. Rollback is
// simulated with a snapshot + restore, matching the SQLite store's
// commit-or-nothing semantics.
func (m *Memory) WithTx(_ context.Context, fn func(settlement.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

type memorySnapshot struct {
	stars       map[string]settlement.Star
	grades      map[string]settlement.Grade
	videos      map[string]settlement.Video
	submissions map[string]settlement.Submission
	settlements map[string]settlement.Settlement
	items       map[string]settlement.SettlementItem
	settings    map[string]settlement.SystemSetting
	itemSeq     map[string]int64
	nextSeq     int64
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		stars:       copyMap(m.stars),
		grades:      copyMap(m.grades),
		videos:      copyMap(m.videos),
		submissions: copyMap(m.submissions),
		settlements: copyMap(m.settlements),
		items:       copyMap(m.items),
		settings:    copyMap(m.settings),
		itemSeq:     copyMap(m.itemSeq),
		nextSeq:     m.nextSeq,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.stars = s.stars
	m.grades = s.grades
	m.videos = s.videos
	m.submissions = s.submissions
	m.settlements = s.settlements
	m.items = s.items
	m.settings = s.settings
	m.itemSeq = s.itemSeq
	m.nextSeq = s.nextSeq
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txView exposes the parent's state without re-locking; the parent's
// write lock is held for the duration of WithTx.
type txView struct {
	parent *Memory
}

var _ settlement.Store = (*txView)(nil)

func (t *txView) SaveStar(_ context.Context, star settlement.Star) error {
	return t.parent.saveStarLocked(star)
}

func (t *txView) GetStar(_ context.Context, id string) (*settlement.Star, error) {
	return t.parent.getStarLocked(id)
}

func (t *txView) ListStars(ctx context.Context) ([]settlement.Star, error) {
	stars := make([]settlement.Star, 0, len(t.parent.stars))
	for _, star := range t.parent.stars {
		t.parent.populateGrade(&star)
		stars = append(stars, star)
	}
	sort.Slice(stars, func(i, j int) bool { return stars[i].Name < stars[j].Name })
	return stars, nil
}

func (t *txView) SaveGrade(_ context.Context, grade settlement.Grade) error {
	t.parent.grades[grade.ID] = grade
	return nil
}

func (t *txView) GetGrade(_ context.Context, id string) (*settlement.Grade, error) {
	grade, ok := t.parent.grades[id]
	if !ok {
		return nil, nil
	}
	return &grade, nil
}

func (t *txView) ListGrades(ctx context.Context) ([]settlement.Grade, error) {
	grades := make([]settlement.Grade, 0, len(t.parent.grades))
	for _, grade := range t.parent.grades {
		grades = append(grades, grade)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].SortOrder < grades[j].SortOrder })
	return grades, nil
}

func (t *txView) DeleteGrade(_ context.Context, id string) error {
	delete(t.parent.grades, id)
	for starID, star := range t.parent.stars {
		if star.GradeID != nil && *star.GradeID == id {
			star.GradeID = nil
			t.parent.stars[starID] = star
		}
	}
	return nil
}

func (t *txView) SaveVideo(_ context.Context, video settlement.Video) error {
	return t.parent.saveVideoLocked(video)
}

func (t *txView) GetVideo(_ context.Context, id string) (*settlement.Video, error) {
	return t.parent.getVideoLocked(id)
}

func (t *txView) SaveSubmission(_ context.Context, sub settlement.Submission) error {
	sub.Video = nil
	t.parent.submissions[sub.ID] = sub
	return nil
}

func (t *txView) ListApprovedSubmissions(_ context.Context, from, to time.Time) ([]settlement.Submission, error) {
	var subs []settlement.Submission
	for _, sub := range t.parent.submissions {
		if sub.Status != settlement.SubmissionApproved {
			continue
		}
		if sub.CreatedAt.Before(from) || !sub.CreatedAt.Before(to) {
			continue
		}
		if video, ok := t.parent.videos[sub.VideoID]; ok {
			sub.Video = &video
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (t *txView) GetSetting(_ context.Context, key string) (*settlement.SystemSetting, error) {
	setting, ok := t.parent.settings[key]
	if !ok {
		return nil, nil
	}
	return &setting, nil
}

func (t *txView) SaveSetting(_ context.Context, setting settlement.SystemSetting) error {
	t.parent.settings[setting.Key] = setting
	return nil
}

func (t *txView) ListSettings(ctx context.Context) ([]settlement.SystemSetting, error) {
	settings := make([]settlement.SystemSetting, 0, len(t.parent.settings))
	for _, s := range t.parent.settings {
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

func (t *txView) SaveSettlement(_ context.Context, s settlement.Settlement) error {
	return t.parent.saveSettlementLocked(s)
}

func (t *txView) GetSettlement(_ context.Context, id string) (*settlement.Settlement, error) {
	return t.parent.getSettlementLocked(id)
}

func (t *txView) GetSettlementForPeriod(_ context.Context, starID string, year, month int) (*settlement.Settlement, error) {
	return t.parent.getSettlementForPeriodLocked(starID, year, month)
}

func (t *txView) ListSettlements(_ context.Context, filter settlement.SettlementFilter) ([]settlement.Settlement, int, error) {
	// Listing inside a transaction is not a path the engine uses.
	return nil, 0, settlement.ErrConcurrentModification
}

func (t *txView) DeleteSettlement(_ context.Context, id string) error {
	return t.parent.deleteSettlementLocked(id)
}

func (t *txView) InsertItems(_ context.Context, items []settlement.SettlementItem) error {
	return t.parent.insertItemsLocked(items)
}

func (t *txView) DeleteItemsBySettlement(_ context.Context, settlementID string) error {
	return t.parent.deleteItemsLocked(settlementID)
}

func (t *txView) GetItems(_ context.Context, settlementID string) ([]settlement.SettlementItem, error) {
	return t.parent.itemsForLocked(settlementID), nil
}

func (t *txView) GetItem(_ context.Context, itemID string) (*settlement.SettlementItem, error) {
	return t.parent.getItemLocked(itemID)
}

func (t *txView) SaveItem(_ context.Context, item settlement.SettlementItem) error {
	return t.parent.saveItemLocked(item)
}

func (t *txView) ListOpenItemsByVideo(_ context.Context, videoID string) ([]settlement.SettlementItem, error) {
	return t.parent.openItemsByVideoLocked(videoID)
}

func (t *txView) WithTx(ctx context.Context, fn func(settlement.Store) error) error {
	// Already inside a transaction; run against the same view.
	return fn(t)
}

func (t *txView) Reset(_ context.Context) error {
	t.parent.reset()
	return nil
}
