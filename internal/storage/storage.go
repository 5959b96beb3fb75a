package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"

	"dupsieve/internal/models"
)

// Storage handles persistence of image records and duplicate groups
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; the engine and server share this handle
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 2

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	column      string // scan_history column added by the migration
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add hash settings to scan history",
		column:      "algorithm",
		up: `
			ALTER TABLE scan_history ADD COLUMN algorithm TEXT DEFAULT '';
			ALTER TABLE scan_history ADD COLUMN threshold REAL DEFAULT 0;
		`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	// Create schema_version table first
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Create base schema
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		hash TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		dpi INTEGER NOT NULL,
		size_mb REAL NOT NULL,
		format TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_images_hash ON images(hash);

	CREATE TABLE IF NOT EXISTS duplicate_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		position INTEGER NOT NULL,
		original_id INTEGER NOT NULL,
		avg_distance REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_groups_kind ON duplicate_groups(kind, position);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER NOT NULL REFERENCES duplicate_groups(id) ON DELETE CASCADE,
		image_id INTEGER NOT NULL,
		member_order INTEGER NOT NULL,
		PRIMARY KEY (group_id, image_id)
	);

	CREATE INDEX IF NOT EXISTS idx_members_image ON group_members(image_id);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_images INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		total_duplicates INTEGER NOT NULL
	);
	`

	_, err = s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		// Check if migration is needed (column might already exist)
		if m.up == "" || (m.column != "" && s.columnExists("scan_history", m.column)) {
			s.setSchemaVersion(m.version)
			continue
		}

		// Execute migration
		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Reset removes every record and group. Scan history is kept.
func (s *Storage) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"group_members", "duplicate_groups", "images"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveRecords saves or replaces multiple records, keeping their ids
func (s *Storage) SaveRecords(records []*models.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO images (id, path, hash, width, height, dpi, size_mb, format)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.Exec(r.ID, r.Path, r.Hash, r.Width, r.Height, r.DPI, r.SizeMB, r.Format)
		if err != nil {
			return fmt.Errorf("failed to insert image %s: %w", r.Path, err)
		}
	}

	return tx.Commit()
}

const recordColumns = `id, path, hash, width, height, dpi, size_mb, format`

func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		r := &models.Record{}
		err := rows.Scan(&r.ID, &r.Path, &r.Hash, &r.Width, &r.Height, &r.DPI, &r.SizeMB, &r.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetAllRecords returns all stored records ordered by id
func (s *Storage) GetAllRecords() ([]*models.Record, error) {
	rows, err := s.db.Query(`SELECT ` + recordColumns + ` FROM images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	return scanRecords(rows)
}

// GetRecordsByIDs returns the records whose id is in ids, ordered by id
func (s *Storage) GetRecordsByIDs(ids []int64) ([]*models.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := lo.Map(ids, func(id int64, _ int) any { return id })

	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM images WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	return scanRecords(rows)
}

// GetRecordByID returns one record or sql.ErrNoRows
func (s *Storage) GetRecordByID(id int64) (*models.Record, error) {
	records, err := s.GetRecordsByIDs([]int64{id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return records[0], nil
}

// GetDuplicateHashRecords returns all records whose hash text occurs more
// than once, ordered by hash then id
func (s *Storage) GetDuplicateHashRecords() ([]*models.Record, error) {
	rows, err := s.db.Query(`
		SELECT ` + recordColumns + ` FROM images
		WHERE hash IN (SELECT hash FROM images GROUP BY hash HAVING COUNT(*) > 1)
		ORDER BY hash, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate hashes: %w", err)
	}
	return scanRecords(rows)
}

// DeleteRecord removes a record and its group memberships
func (s *Storage) DeleteRecord(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM group_members WHERE image_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM images WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveGroups replaces every stored group of the given kind
func (s *Storage) SaveGroups(kind models.GroupKind, groups []*models.DuplicateGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM group_members WHERE group_id IN (SELECT id FROM duplicate_groups WHERE kind = ?)`, string(kind))
	if err != nil {
		return fmt.Errorf("failed to reset groups: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM duplicate_groups WHERE kind = ?`, string(kind)); err != nil {
		return fmt.Errorf("failed to reset groups: %w", err)
	}

	groupStmt, err := tx.Prepare(`
		INSERT INTO duplicate_groups (kind, position, original_id, avg_distance) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer groupStmt.Close()

	memberStmt, err := tx.Prepare(`INSERT INTO group_members (group_id, image_id, member_order) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer memberStmt.Close()

	for pos, g := range groups {
		if g.Original == nil {
			return fmt.Errorf("group %d has no original", g.ID)
		}
		res, err := groupStmt.Exec(string(kind), pos+1, g.Original.ID, g.AvgDistance)
		if err != nil {
			return fmt.Errorf("failed to insert group %d: %w", g.ID, err)
		}
		groupID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read group id: %w", err)
		}
		for i, m := range g.Members {
			if _, err := memberStmt.Exec(groupID, m.ID, i); err != nil {
				return fmt.Errorf("failed to update group for %s: %w", m.Path, err)
			}
		}
	}

	return tx.Commit()
}

// GetGroups returns the stored groups of a kind in their saved order. Group
// ids are positions starting at 1.
func (s *Storage) GetGroups(kind models.GroupKind) ([]*models.DuplicateGroup, error) {
	rows, err := s.db.Query(`
		SELECT g.position, g.original_id, g.avg_distance, `+prefixed("i", recordColumns)+`
		FROM duplicate_groups g
		JOIN group_members m ON m.group_id = g.id
		JOIN images i ON i.id = m.image_id
		WHERE g.kind = ?
		ORDER BY g.position, m.member_order
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.DuplicateGroup
	var current *models.DuplicateGroup
	var originalID int64
	flush := func() {
		if current == nil || len(current.Members) < 2 {
			return
		}
		for _, m := range current.Members {
			if m.ID == originalID && current.Original == nil {
				current.Original = m
			} else {
				current.Duplicates = append(current.Duplicates, m)
			}
		}
		if current.Original == nil {
			current.Original, current.Duplicates = current.Duplicates[0], current.Duplicates[1:]
		}
		groups = append(groups, current)
	}

	for rows.Next() {
		var pos int
		var origID int64
		var avg float64
		r := &models.Record{}
		err := rows.Scan(&pos, &origID, &avg, &r.ID, &r.Path, &r.Hash, &r.Width, &r.Height, &r.DPI, &r.SizeMB, &r.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if current == nil || current.ID != pos {
			flush()
			current = &models.DuplicateGroup{ID: pos, Kind: kind, AvgDistance: avg}
			originalID = origID
		}
		current.Members = append(current.Members, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	flush()

	return groups, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// GetGroupCount returns the number of groups of a kind
func (s *Storage) GetGroupCount(kind models.GroupKind) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM duplicate_groups WHERE kind = ?", string(kind)).Scan(&count)
	return count, err
}

// ScanInfo describes one recorded scan
type ScanInfo struct {
	Folder          string    `json:"folder"`
	ScannedAt       time.Time `json:"scanned_at"`
	Algorithm       string    `json:"algorithm"`
	Threshold       float64   `json:"threshold"`
	TotalImages     int       `json:"total_images"`
	TotalGroups     int       `json:"total_groups"`
	TotalDuplicates int       `json:"total_duplicates"`
}

// RecordScan records a scan in history
func (s *Storage) RecordScan(info ScanInfo) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_history (folder, algorithm, threshold, total_images, total_groups, total_duplicates)
		VALUES (?, ?, ?, ?, ?, ?)
	`, info.Folder, info.Algorithm, info.Threshold, info.TotalImages, info.TotalGroups, info.TotalDuplicates)
	return err
}

// ErrNoScan is returned when no scan has been recorded
var ErrNoScan = errors.New("no scan recorded")

// LastScan returns the most recent scan
func (s *Storage) LastScan() (*ScanInfo, error) {
	info := &ScanInfo{}
	var scannedAt string
	err := s.db.QueryRow(`
		SELECT folder, scanned_at, algorithm, threshold, total_images, total_groups, total_duplicates
		FROM scan_history ORDER BY id DESC LIMIT 1
	`).Scan(&info.Folder, &scannedAt, &info.Algorithm, &info.Threshold, &info.TotalImages, &info.TotalGroups, &info.TotalDuplicates)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoScan
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	info.ScannedAt = parseTimestamp(scannedAt)
	return info, nil
}

// parseTimestamp accepts both the driver's RFC 3339 rendering and SQLite's
// CURRENT_TIMESTAMP text
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
