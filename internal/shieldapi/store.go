package shieldapi

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Abhayjain-py/deepshield/internal/domain"
)

// Store is the backend's SQLite persistence layer.
type Store struct {
	db *sql.DB
}

// NewStore opens the backend database and runs migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY and
	// keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME,
			login_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS otps (
			otp_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			code TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			used INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_otps_email ON otps(email, created_at)`,
		`CREATE TABLE IF NOT EXISTS uploads (
			upload_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			filename TEXT NOT NULL,
			verdict TEXT NOT NULL,
			confidence REAL NOT NULL,
			byte_size INTEGER NOT NULL,
			mime_type TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_email ON uploads(email, created_at)`,
		`CREATE TABLE IF NOT EXISTS complaints (
			complaint_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			case_number TEXT NOT NULL,
			complaint_text TEXT NOT NULL,
			complaint_type TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence REAL NOT NULL,
			status TEXT NOT NULL,
			impact_level TEXT,
			source_url TEXT,
			incident_date DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_complaints_email ON complaints(email, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureUser creates the user row if it does not exist yet.
func (s *Store) EnsureUser(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, created_at) VALUES (?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		email, time.Now())
	return err
}

// RecordLogin updates the user's login bookkeeping.
func (s *Store) RecordLogin(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, login_count = login_count + 1 WHERE email = ?`,
		time.Now(), email)
	return err
}

// GetProfile returns the user's account information.
func (s *Store) GetProfile(ctx context.Context, email string) (*domain.Profile, error) {
	var profile domain.Profile
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT email, created_at, last_login, login_count FROM users WHERE email = ?`,
		email).Scan(&profile.Email, &profile.MemberSince, &lastLogin, &profile.LoginCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		profile.LastLogin = &lastLogin.Time
	}
	return &profile, nil
}

// CreateOTP stores a freshly issued passcode.
func (s *Store) CreateOTP(ctx context.Context, otpID, email, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO otps (otp_id, email, code, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		otpID, email, code, expiresAt, time.Now())
	return err
}

// ConsumeOTP marks a matching, unused, unexpired passcode as used. It
// returns false when no such passcode exists.
func (s *Store) ConsumeOTP(ctx context.Context, email, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE otps SET used = 1
		 WHERE email = ? AND code = ? AND used = 0 AND expires_at > ?`,
		email, code, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateUpload records a processed detection.
func (s *Store) CreateUpload(ctx context.Context, uploadID, email string, rec domain.UploadRecord, byteSize int64, mimeType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (upload_id, email, filename, verdict, confidence, byte_size, mime_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uploadID, email, rec.Filename, rec.Verdict, rec.ConfidenceScore, byteSize, mimeType, time.Now())
	return err
}

// ListUploads returns the user's most recent uploads, newest first.
func (s *Store) ListUploads(ctx context.Context, email string, limit int) ([]domain.UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT upload_id, filename, verdict, confidence, created_at
		 FROM uploads WHERE email = ? ORDER BY created_at DESC LIMIT ?`,
		email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []domain.UploadRecord
	for rows.Next() {
		var rec domain.UploadRecord
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Verdict, &rec.ConfidenceScore, &rec.CreatedAt); err != nil {
			return nil, err
		}
		uploads = append(uploads, rec)
	}
	return uploads, rows.Err()
}

// CreateComplaint records a classified complaint.
func (s *Store) CreateComplaint(ctx context.Context, rec domain.ComplaintRecord, email, complaintType string, impact domain.ImpactLevel, sourceURL string, incidentDate *time.Time) error {
	var incident sql.NullTime
	if incidentDate != nil {
		incident = sql.NullTime{Time: *incidentDate, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO complaints (complaint_id, email, case_number, complaint_text, complaint_type,
			category, confidence, status, impact_level, source_url, incident_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, email, rec.CaseNumber, rec.Text, complaintType,
		rec.Category, rec.Confidence, rec.Status, string(impact), sourceURL, incident, time.Now())
	return err
}

// ListComplaints returns the user's most recent complaints, newest first.
func (s *Store) ListComplaints(ctx context.Context, email string, limit int) ([]domain.ComplaintRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT complaint_id, case_number, complaint_text, category, confidence, status, created_at
		 FROM complaints WHERE email = ? ORDER BY created_at DESC LIMIT ?`,
		email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var complaints []domain.ComplaintRecord
	for rows.Next() {
		var rec domain.ComplaintRecord
		if err := rows.Scan(&rec.ID, &rec.CaseNumber, &rec.Text, &rec.Category, &rec.Confidence, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		complaints = append(complaints, rec)
	}
	return complaints, rows.Err()
}

// CountStats aggregates dashboard statistics for a user.
func (s *Store) CountStats(ctx context.Context, email string) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN verdict = ? THEN 1 ELSE 0 END), 0)
		 FROM uploads WHERE email = ?`,
		domain.VerdictDeepfake, email).Scan(&stats.TotalUploads, &stats.DeepfakeCount)
	if err != nil {
		return stats, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM complaints WHERE email = ?`, email).Scan(&stats.ComplaintCount)
	if err != nil {
		return stats, err
	}
	stats.ProtectionScore = protectionScore(stats.TotalUploads, stats.DeepfakeCount, stats.ComplaintCount)
	return stats, nil
}

// CountSystemStats aggregates activity across all users for the admin view.
func (s *Store) CountSystemStats(ctx context.Context) (domain.SystemStats, error) {
	var stats domain.SystemStats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users),
		        (SELECT COUNT(*) FROM uploads),
		        (SELECT COUNT(*) FROM complaints),
		        (SELECT COUNT(*) FROM uploads WHERE verdict = ?)`,
		domain.VerdictDeepfake).Scan(
		&stats.TotalUsers, &stats.TotalUploads, &stats.TotalComplaints, &stats.DeepfakeDetections)
	if err != nil {
		return stats, err
	}
	rate := float64(stats.DeepfakeDetections) / float64(max(stats.TotalUploads, 1)) * 100
	stats.DetectionRate = math.Round(rate*100) / 100
	return stats, nil
}

// protectionScore is the dashboard's activity-weighted score in [60,100].
func protectionScore(totalUploads, deepfakeCount, complaintCount int) int {
	score := 85
	if totalUploads > 0 {
		score += min(totalUploads*2, 10)
	}
	if deepfakeCount > 0 {
		score -= min(deepfakeCount*5, 20)
	}
	if complaintCount > 0 {
		score += min(complaintCount*3, 15)
	}
	return max(60, min(100, score))
}
