/*
Package sqlite provides the SQLite-backed settlement.Store.

PURPOSE:
  Production persistence for the settlement engine. In production with
  PostgreSQL the same patterns apply - only minor SQL dialect
  differences.

KEY TABLES:
  grades:           Payout tiers with the fallback base rate
  stars:            Creators (never hard-deleted)
  videos:           Produced assets, optional per-video rate override
  submissions:      Review versions; APPROVED ones drive generation
  settlements:      Per-creator monthly aggregates
  settlement_items: Line items (cascade-deleted with their settlement)
  system_settings:  Key/value generation configuration

INVARIANT-BEARING INDEXES:
  idx_settlements_star_period: UNIQUE(star_id, year, month) - one
    settlement per creator per month, enforced by the database, not
    just by application code.

TRANSACTIONS:
  WithTx wraps fn in a single BEGIN/COMMIT. The generator runs each
  creator's delete-then-insert through it so items and the recomputed
  total always change together. The store mutex serializes writers the
  same way row locks would under PostgreSQL.

AMOUNT STORAGE:
  Decimal amounts are stored as TEXT and parsed with shopspring/decimal
  to avoid floating-point drift on money.

WAL MODE:
  SQLite is opened with WAL and foreign keys on. ON DELETE CASCADE on
  settlement_items carries the delete cascade.

SEE ALSO:
  - settlement/store.go: Interface definition
  - settlement/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/starworks/settlement-engine/settlement"
)

// Store implements settlement.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ settlement.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection: SQLite serializes writers anyway, and
	// ":memory:" gives every pooled connection its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grades (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		color TEXT,
		sort_order INTEGER DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stars (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		grade_id TEXT REFERENCES grades(id),
		base_rate TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stars_grade ON stars(grade_id);

	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		owner_id TEXT NOT NULL REFERENCES stars(id),
		category TEXT,
		status TEXT,
		custom_rate TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_videos_owner ON videos(owner_id);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL REFERENCES videos(id),
		version INTEGER DEFAULT 1,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_status_created
		ON submissions(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_submissions_video ON submissions(video_id);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		star_id TEXT NOT NULL REFERENCES stars(id),
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_date TEXT,
		note TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one settlement per creator per month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_star_period
		ON settlements(star_id, year, month);
	CREATE INDEX IF NOT EXISTS idx_settlements_period ON settlements(year, month);
	CREATE INDEX IF NOT EXISTS idx_settlements_status ON settlements(status);

	CREATE TABLE IF NOT EXISTS settlement_items (
		id TEXT PRIMARY KEY,
		settlement_id TEXT NOT NULL REFERENCES settlements(id) ON DELETE CASCADE,
		item_type TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		adjusted_amount TEXT,
		description TEXT,
		submission_id TEXT REFERENCES submissions(id),
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_settlement
		ON settlement_items(settlement_id);
	CREATE INDEX IF NOT EXISTS idx_items_submission
		ON settlement_items(submission_id) WHERE submission_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS system_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		label TEXT,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper
// works inside and outside transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STARS AND GRADES
// =============================================================================

func (s *Store) SaveStar(ctx context.Context, star settlement.Star) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveStar(ctx, s.db, star)
}

func saveStar(ctx context.Context, q dbtx, star settlement.Star) error {
	if star.CreatedAt.IsZero() {
		star.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO stars (id, name, email, grade_id, base_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			grade_id = excluded.grade_id,
			base_rate = excluded.base_rate
	`, star.ID, star.Name, star.Email,
		nullString(derefString(star.GradeID)),
		nullDecimal(star.BaseRate),
		star.CreatedAt.Format(time.RFC3339))
	return err
}

const starColumns = `
	s.id, s.name, s.email, s.grade_id, s.base_rate, s.created_at,
	g.id, g.name, g.base_rate, g.color, g.sort_order, g.created_at`

const starSelect = `
	SELECT ` + starColumns + `
	FROM stars s LEFT JOIN grades g ON g.id = s.grade_id`

func (s *Store) GetStar(ctx context.Context, id string) (*settlement.Star, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStar(ctx, s.db, id)
}

func getStar(ctx context.Context, q dbtx, id string) (*settlement.Star, error) {
	rows, err := q.QueryContext(ctx, starSelect+" WHERE s.id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	star, err := scanStar(rows)
	if err != nil {
		return nil, err
	}
	return &star, nil
}

func (s *Store) ListStars(ctx context.Context) ([]settlement.Star, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listStars(ctx, s.db)
}

func listStars(ctx context.Context, q dbtx) ([]settlement.Star, error) {
	rows, err := q.QueryContext(ctx, starSelect+" ORDER BY s.name, s.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stars []settlement.Star
	for rows.Next() {
		star, err := scanStar(rows)
		if err != nil {
			return nil, err
		}
		stars = append(stars, star)
	}
	return stars, rows.Err()
}

func scanStar(rows *sql.Rows) (settlement.Star, error) {
	var star settlement.Star
	var email, gradeID, baseRate sql.NullString
	var createdAt string
	var gID, gName, gRate, gColor sql.NullString
	var gSort sql.NullInt64
	var gCreated sql.NullString

	err := rows.Scan(&star.ID, &star.Name, &email, &gradeID, &baseRate, &createdAt,
		&gID, &gName, &gRate, &gColor, &gSort, &gCreated)
	if err != nil {
		return star, err
	}

	star.Email = email.String
	if gradeID.Valid {
		star.GradeID = &gradeID.String
	}
	star.BaseRate = parseNullDecimal(baseRate)
	star.CreatedAt = parseTime(createdAt)

	if gID.Valid {
		star.Grade = &settlement.Grade{
			ID:        gID.String,
			Name:      gName.String,
			BaseRate:  parseDecimal(gRate.String),
			Color:     gColor.String,
			SortOrder: int(gSort.Int64),
			CreatedAt: parseTime(gCreated.String),
		}
	}
	return star, nil
}

func (s *Store) SaveGrade(ctx context.Context, grade settlement.Grade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGrade(ctx, s.db, grade)
}

func saveGrade(ctx context.Context, q dbtx, grade settlement.Grade) error {
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO grades (id, name, base_rate, color, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			base_rate = excluded.base_rate,
			color = excluded.color,
			sort_order = excluded.sort_order
	`, grade.ID, grade.Name, grade.BaseRate.String(), grade.Color,
		grade.SortOrder, grade.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetGrade(ctx context.Context, id string) (*settlement.Grade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGrade(ctx, s.db, id)
}

func getGrade(ctx context.Context, q dbtx, id string) (*settlement.Grade, error) {
	var grade settlement.Grade
	var rate, color, createdAt string
	err := q.QueryRowContext(ctx,
		"SELECT id, name, base_rate, COALESCE(color, ''), sort_order, created_at FROM grades WHERE id = ?",
		id,
	).Scan(&grade.ID, &grade.Name, &rate, &color, &grade.SortOrder, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	grade.BaseRate = parseDecimal(rate)
	grade.Color = color
	grade.CreatedAt = parseTime(createdAt)
	return &grade, nil
}

func (s *Store) ListGrades(ctx context.Context) ([]settlement.Grade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listGrades(ctx, s.db)
}

func listGrades(ctx context.Context, q dbtx) ([]settlement.Grade, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, base_rate, COALESCE(color, ''), sort_order, created_at FROM grades ORDER BY sort_order, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []settlement.Grade
	for rows.Next() {
		var grade settlement.Grade
		var rate, color, createdAt string
		if err := rows.Scan(&grade.ID, &grade.Name, &rate, &color, &grade.SortOrder, &createdAt); err != nil {
			return nil, err
		}
		grade.BaseRate = parseDecimal(rate)
		grade.Color = color
		grade.CreatedAt = parseTime(createdAt)
		grades = append(grades, grade)
	}
	return grades, rows.Err()
}

func (s *Store) DeleteGrade(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx settlement.Store) error {
		return tx.DeleteGrade(ctx, id)
	})
}

func deleteGrade(ctx context.Context, q dbtx, id string) error {
	// Members become unassigned; stars are never cascade-deleted.
	if _, err := q.ExecContext(ctx, "UPDATE stars SET grade_id = NULL WHERE grade_id = ?", id); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, "DELETE FROM grades WHERE id = ?", id)
	return err
}

// =============================================================================
// VIDEOS AND SUBMISSIONS
// =============================================================================

func (s *Store) SaveVideo(ctx context.Context, video settlement.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveVideo(ctx, s.db, video)
}

func saveVideo(ctx context.Context, q dbtx, video settlement.Video) error {
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO videos (id, title, owner_id, category, status, custom_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			owner_id = excluded.owner_id,
			category = excluded.category,
			status = excluded.status,
			custom_rate = excluded.custom_rate
	`, video.ID, video.Title, video.OwnerID, video.Category, video.Status,
		nullDecimal(video.CustomRate), video.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetVideo(ctx context.Context, id string) (*settlement.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getVideo(ctx, s.db, id)
}

func getVideo(ctx context.Context, q dbtx, id string) (*settlement.Video, error) {
	var video settlement.Video
	var category, status, customRate sql.NullString
	var createdAt string
	err := q.QueryRowContext(ctx,
		"SELECT id, title, owner_id, category, status, custom_rate, created_at FROM videos WHERE id = ?",
		id,
	).Scan(&video.ID, &video.Title, &video.OwnerID, &category, &status, &customRate, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	video.Category = category.String
	video.Status = status.String
	video.CustomRate = parseNullDecimal(customRate)
	video.CreatedAt = parseTime(createdAt)
	return &video, nil
}

func (s *Store) SaveSubmission(ctx context.Context, sub settlement.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSubmission(ctx, s.db, sub)
}

func saveSubmission(ctx context.Context, q dbtx, sub settlement.Submission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO submissions (id, video_id, version, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			version = excluded.version
	`, sub.ID, sub.VideoID, sub.Version, string(sub.Status),
		sub.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListApprovedSubmissions(ctx context.Context, from, to time.Time) ([]settlement.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApprovedSubmissions(ctx, s.db, from, to)
}

func listApprovedSubmissions(ctx context.Context, q dbtx, from, to time.Time) ([]settlement.Submission, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sub.id, sub.video_id, sub.version, sub.status, sub.created_at,
		       v.id, v.title, v.owner_id, v.category, v.status, v.custom_rate, v.created_at
		FROM submissions sub
		JOIN videos v ON v.id = sub.video_id
		WHERE sub.status = ? AND sub.created_at >= ? AND sub.created_at < ?
		ORDER BY sub.created_at, sub.id
	`, string(settlement.SubmissionApproved),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []settlement.Submission
	for rows.Next() {
		var sub settlement.Submission
		var video settlement.Video
		var subStatus, subCreated string
		var vCategory, vStatus, vCustomRate sql.NullString
		var vCreated string
		err := rows.Scan(&sub.ID, &sub.VideoID, &sub.Version, &subStatus, &subCreated,
			&video.ID, &video.Title, &video.OwnerID, &vCategory, &vStatus, &vCustomRate, &vCreated)
		if err != nil {
			return nil, err
		}
		sub.Status = settlement.SubmissionStatus(subStatus)
		sub.CreatedAt = parseTime(subCreated)
		video.Category = vCategory.String
		video.Status = vStatus.String
		video.CustomRate = parseNullDecimal(vCustomRate)
		video.CreatedAt = parseTime(vCreated)
		sub.Video = &video
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// =============================================================================
// SYSTEM SETTINGS
// =============================================================================

func (s *Store) GetSetting(ctx context.Context, key string) (*settlement.SystemSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSetting(ctx, s.db, key)
}

func getSetting(ctx context.Context, q dbtx, key string) (*settlement.SystemSetting, error) {
	var setting settlement.SystemSetting
	var label sql.NullString
	var updatedAt string
	err := q.QueryRowContext(ctx,
		"SELECT key, value, label, updated_at FROM system_settings WHERE key = ?",
		key,
	).Scan(&setting.Key, &setting.Value, &label, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	setting.Label = label.String
	setting.UpdatedAt = parseTime(updatedAt)
	return &setting, nil
}

func (s *Store) SaveSetting(ctx context.Context, setting settlement.SystemSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSetting(ctx, s.db, setting)
}

func saveSetting(ctx context.Context, q dbtx, setting settlement.SystemSetting) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, label, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			label = CASE WHEN excluded.label != '' THEN excluded.label ELSE system_settings.label END,
			updated_at = excluded.updated_at
	`, setting.Key, setting.Value, setting.Label,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListSettings(ctx context.Context) ([]settlement.SystemSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSettings(ctx, s.db)
}

func listSettings(ctx context.Context, q dbtx) ([]settlement.SystemSetting, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT key, value, COALESCE(label, ''), updated_at FROM system_settings ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []settlement.SystemSetting
	for rows.Next() {
		var setting settlement.SystemSetting
		var updatedAt string
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.Label, &updatedAt); err != nil {
			return nil, err
		}
		setting.UpdatedAt = parseTime(updatedAt)
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (s *Store) SaveSettlement(ctx context.Context, st settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSettlement(ctx, s.db, st)
}

func saveSettlement(ctx context.Context, q dbtx, st settlement.Settlement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settlements (id, star_id, year, month, total_amount, status,
			payment_date, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_amount = excluded.total_amount,
			status = excluded.status,
			payment_date = excluded.payment_date,
			note = excluded.note,
			updated_at = excluded.updated_at
	`, st.ID, st.StarID, st.Year, st.Month, st.TotalAmount.String(), string(st.Status),
		nullTime(st.PaymentDate), st.Note,
		st.CreatedAt.UTC().Format(time.RFC3339), st.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

const settlementSelect = `
	SELECT st.id, st.star_id, st.year, st.month, st.total_amount, st.status,
	       st.payment_date, st.note, st.created_at, st.updated_at,
	       ` + starColumns + `
	FROM settlements st
	JOIN stars s ON s.id = st.star_id
	LEFT JOIN grades g ON g.id = s.grade_id`

func (s *Store) GetSettlement(ctx context.Context, id string) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSettlementByID(ctx, s.db, id)
}

func getSettlementByID(ctx context.Context, q dbtx, id string) (*settlement.Settlement, error) {
	st, err := querySettlementRow(ctx, q, settlementSelect+" WHERE st.id = ?", id)
	if err != nil || st == nil {
		return st, err
	}
	items, err := getItems(ctx, q, st.ID)
	if err != nil {
		return nil, err
	}
	st.Items = items
	return st, nil
}

func (s *Store) GetSettlementForPeriod(ctx context.Context, starID string, year, month int) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSettlementForPeriod(ctx, s.db, starID, year, month)
}

func getSettlementForPeriod(ctx context.Context, q dbtx, starID string, year, month int) (*settlement.Settlement, error) {
	st, err := querySettlementRow(ctx, q,
		settlementSelect+" WHERE st.star_id = ? AND st.year = ? AND st.month = ?",
		starID, year, month)
	if err != nil || st == nil {
		return st, err
	}
	items, err := getItems(ctx, q, st.ID)
	if err != nil {
		return nil, err
	}
	st.Items = items
	return st, nil
}

func querySettlementRow(ctx context.Context, q dbtx, query string, args ...any) (*settlement.Settlement, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	st, err := scanSettlement(rows)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanSettlement(rows *sql.Rows) (settlement.Settlement, error) {
	var st settlement.Settlement
	var total, status string
	var paymentDate, note sql.NullString
	var createdAt, updatedAt string
	var star settlement.Star
	var email, gradeID, baseRate sql.NullString
	var starCreated string
	var gID, gName, gRate, gColor sql.NullString
	var gSort sql.NullInt64
	var gCreated sql.NullString

	err := rows.Scan(&st.ID, &st.StarID, &st.Year, &st.Month, &total, &status,
		&paymentDate, &note, &createdAt, &updatedAt,
		&star.ID, &star.Name, &email, &gradeID, &baseRate, &starCreated,
		&gID, &gName, &gRate, &gColor, &gSort, &gCreated)
	if err != nil {
		return st, err
	}

	st.TotalAmount = parseDecimal(total)
	st.Status = settlement.SettlementStatus(status)
	if paymentDate.Valid {
		t := parseTime(paymentDate.String)
		st.PaymentDate = &t
	}
	st.Note = note.String
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)

	star.Email = email.String
	if gradeID.Valid {
		star.GradeID = &gradeID.String
	}
	star.BaseRate = parseNullDecimal(baseRate)
	star.CreatedAt = parseTime(starCreated)
	if gID.Valid {
		star.Grade = &settlement.Grade{
			ID:        gID.String,
			Name:      gName.String,
			BaseRate:  parseDecimal(gRate.String),
			Color:     gColor.String,
			SortOrder: int(gSort.Int64),
			CreatedAt: parseTime(gCreated.String),
		}
	}
	st.Star = &star
	return st, nil
}

func (s *Store) ListSettlements(ctx context.Context, filter settlement.SettlementFilter) ([]settlement.Settlement, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []any
	if filter.Year != 0 {
		conds = append(conds, "st.year = ?")
		args = append(args, filter.Year)
	}
	if filter.Month != 0 {
		conds = append(conds, "st.month = ?")
		args = append(args, filter.Month)
	}
	if filter.Status != "" {
		conds = append(conds, "st.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.StarID != "" {
		conds = append(conds, "st.star_id = ?")
		args = append(args, filter.StarID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM settlements st"+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := settlementSelect + where + " ORDER BY st.year DESC, st.month DESC, s.name, st.id"
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var settlements []settlement.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, 0, err
		}
		settlements = append(settlements, st)
	}
	return settlements, total, rows.Err()
}

func (s *Store) DeleteSettlement(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSettlement(ctx, s.db, id)
}

func deleteSettlement(ctx context.Context, q dbtx, id string) error {
	// ON DELETE CASCADE removes the items.
	_, err := q.ExecContext(ctx, "DELETE FROM settlements WHERE id = ?", id)
	return err
}

// =============================================================================
// SETTLEMENT ITEMS
// =============================================================================

func (s *Store) InsertItems(ctx context.Context, items []settlement.SettlementItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertItems(ctx, s.db, items)
}

func insertItems(ctx context.Context, q dbtx, items []settlement.SettlementItem) error {
	for _, item := range items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO settlement_items (id, settlement_id, item_type, base_amount,
				adjusted_amount, description, submission_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, item.ID, item.SettlementID, string(item.ItemType), item.BaseAmount.String(),
			nullDecimal(item.AdjustedAmount), item.Description,
			nullString(derefString(item.SubmissionID)),
			item.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteItemsBySettlement(ctx context.Context, settlementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteItemsBySettlement(ctx, s.db, settlementID)
}

func deleteItemsBySettlement(ctx context.Context, q dbtx, settlementID string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM settlement_items WHERE settlement_id = ?", settlementID)
	return err
}

const itemSelect = `
	SELECT id, settlement_id, item_type, base_amount, adjusted_amount,
	       description, submission_id, created_at
	FROM settlement_items`

func (s *Store) GetItems(ctx context.Context, settlementID string) ([]settlement.SettlementItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItems(ctx, s.db, settlementID)
}

func getItems(ctx context.Context, q dbtx, settlementID string) ([]settlement.SettlementItem, error) {
	return queryItems(ctx, q,
		itemSelect+" WHERE settlement_id = ? ORDER BY created_at, rowid", settlementID)
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*settlement.SettlementItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, itemID)
}

func getItem(ctx context.Context, q dbtx, itemID string) (*settlement.SettlementItem, error) {
	items, err := queryItems(ctx, q, itemSelect+" WHERE id = ?", itemID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *Store) SaveItem(ctx context.Context, item settlement.SettlementItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveItem(ctx, s.db, item)
}

func saveItem(ctx context.Context, q dbtx, item settlement.SettlementItem) error {
	_, err := q.ExecContext(ctx, `
		UPDATE settlement_items
		SET base_amount = ?, adjusted_amount = ?, description = ?
		WHERE id = ?
	`, item.BaseAmount.String(), nullDecimal(item.AdjustedAmount),
		item.Description, item.ID)
	return err
}

func (s *Store) ListOpenItemsByVideo(ctx context.Context, videoID string) ([]settlement.SettlementItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOpenItemsByVideo(ctx, s.db, videoID)
}

func listOpenItemsByVideo(ctx context.Context, q dbtx, videoID string) ([]settlement.SettlementItem, error) {
	return queryItems(ctx, q, `
		SELECT i.id, i.settlement_id, i.item_type, i.base_amount, i.adjusted_amount,
		       i.description, i.submission_id, i.created_at
		FROM settlement_items i
		JOIN submissions sub ON sub.id = i.submission_id
		JOIN settlements st ON st.id = i.settlement_id
		WHERE sub.video_id = ? AND st.status != ?
		ORDER BY i.created_at, i.rowid
	`, videoID, string(settlement.StatusCompleted))
}

func queryItems(ctx context.Context, q dbtx, query string, args ...any) ([]settlement.SettlementItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []settlement.SettlementItem
	for rows.Next() {
		var item settlement.SettlementItem
		var itemType, base string
		var adjusted, description, submissionID sql.NullString
		var createdAt string
		err := rows.Scan(&item.ID, &item.SettlementID, &itemType, &base,
			&adjusted, &description, &submissionID, &createdAt)
		if err != nil {
			return nil, err
		}
		item.ItemType = settlement.ItemType(itemType)
		item.BaseAmount = parseDecimal(base)
		item.AdjustedAmount = parseNullDecimal(adjusted)
		item.Description = description.String
		if submissionID.Valid {
			item.SubmissionID = &submissionID.String
		}
		item.CreatedAt = parseTime(createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is
// held for the duration so concurrent generations for the same period
// serialize instead of interleaving.
func (s *Store) WithTx(ctx context.Context, fn func(settlement.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset wipes all data. Dev/demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resetAll(ctx, s.db)
}

func resetAll(ctx context.Context, q dbtx) error {
	tables := []string{
		"settlement_items", "settlements", "submissions",
		"videos", "stars", "grades", "system_settings",
	}
	for _, table := range tables {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// txStore is the transactional view handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

var _ settlement.Store = (*txStore)(nil)

func (t *txStore) SaveStar(ctx context.Context, star settlement.Star) error {
	return saveStar(ctx, t.tx, star)
}

func (t *txStore) GetStar(ctx context.Context, id string) (*settlement.Star, error) {
	return getStar(ctx, t.tx, id)
}

func (t *txStore) ListStars(ctx context.Context) ([]settlement.Star, error) {
	return listStars(ctx, t.tx)
}

func (t *txStore) SaveGrade(ctx context.Context, grade settlement.Grade) error {
	return saveGrade(ctx, t.tx, grade)
}

func (t *txStore) GetGrade(ctx context.Context, id string) (*settlement.Grade, error) {
	return getGrade(ctx, t.tx, id)
}

func (t *txStore) ListGrades(ctx context.Context) ([]settlement.Grade, error) {
	return listGrades(ctx, t.tx)
}

func (t *txStore) DeleteGrade(ctx context.Context, id string) error {
	return deleteGrade(ctx, t.tx, id)
}

func (t *txStore) SaveVideo(ctx context.Context, video settlement.Video) error {
	return saveVideo(ctx, t.tx, video)
}

func (t *txStore) GetVideo(ctx context.Context, id string) (*settlement.Video, error) {
	return getVideo(ctx, t.tx, id)
}

func (t *txStore) SaveSubmission(ctx context.Context, sub settlement.Submission) error {
	return saveSubmission(ctx, t.tx, sub)
}

func (t *txStore) ListApprovedSubmissions(ctx context.Context, from, to time.Time) ([]settlement.Submission, error) {
	return listApprovedSubmissions(ctx, t.tx, from, to)
}

func (t *txStore) GetSetting(ctx context.Context, key string) (*settlement.SystemSetting, error) {
	return getSetting(ctx, t.tx, key)
}

func (t *txStore) SaveSetting(ctx context.Context, setting settlement.SystemSetting) error {
	return saveSetting(ctx, t.tx, setting)
}

func (t *txStore) ListSettings(ctx context.Context) ([]settlement.SystemSetting, error) {
	return listSettings(ctx, t.tx)
}

func (t *txStore) SaveSettlement(ctx context.Context, st settlement.Settlement) error {
	return saveSettlement(ctx, t.tx, st)
}

func (t *txStore) GetSettlement(ctx context.Context, id string) (*settlement.Settlement, error) {
	return getSettlementByID(ctx, t.tx, id)
}

func (t *txStore) GetSettlementForPeriod(ctx context.Context, starID string, year, month int) (*settlement.Settlement, error) {
	return getSettlementForPeriod(ctx, t.tx, starID, year, month)
}

func (t *txStore) ListSettlements(ctx context.Context, filter settlement.SettlementFilter) ([]settlement.Settlement, int, error) {
	// Listing inside a transaction is not a path the engine uses.
	return nil, 0, settlement.ErrConcurrentModification
}

func (t *txStore) DeleteSettlement(ctx context.Context, id string) error {
	return deleteSettlement(ctx, t.tx, id)
}

func (t *txStore) InsertItems(ctx context.Context, items []settlement.SettlementItem) error {
	return insertItems(ctx, t.tx, items)
}

func (t *txStore) DeleteItemsBySettlement(ctx context.Context, settlementID string) error {
	return deleteItemsBySettlement(ctx, t.tx, settlementID)
}

func (t *txStore) GetItems(ctx context.Context, settlementID string) ([]settlement.SettlementItem, error) {
	return getItems(ctx, t.tx, settlementID)
}

func (t *txStore) GetItem(ctx context.Context, itemID string) (*settlement.SettlementItem, error) {
	return getItem(ctx, t.tx, itemID)
}

func (t *txStore) SaveItem(ctx context.Context, item settlement.SettlementItem) error {
	return saveItem(ctx, t.tx, item)
}

func (t *txStore) ListOpenItemsByVideo(ctx context.Context, videoID string) ([]settlement.SettlementItem, error) {
	return listOpenItemsByVideo(ctx, t.tx, videoID)
}

func (t *txStore) WithTx(ctx context.Context, fn func(settlement.Store) error) error {
	// Already inside a transaction; run against the same view.
	return fn(t)
}

func (t *txStore) Reset(ctx context.Context) error {
	return resetAll(ctx, t.tx)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseNullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d := parseDecimal(ns.String)
	return &d
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
