package domain

import (
	"io"
	"time"
)

// Session is the authenticated identity plus credential plus validity window.
// It is either fully present (identifier, credential and a parseable expiry)
// or fully absent; partial state is not a legal value.
type Session struct {
	SubjectIdentifier string    `json:"subject_identifier"`
	Credential        string    `json:"credential"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// FileDescriptor describes the uploaded media file.
type FileDescriptor struct {
	Name     string `json:"name"`
	ByteSize int64  `json:"byte_size"`
	MimeType string `json:"mime_type"`
}

// PendingAnalysisResult is the single detection result handed off from the
// upload flow to the results flow. TransientHandle is an in-memory reference
// to the original media; it is never persisted and is nil when the result is
// read back by a different process.
type PendingAnalysisResult struct {
	Verdict         Verdict        `json:"verdict"`
	ConfidenceScore float64        `json:"confidence_score"`
	OriginalFile    FileDescriptor `json:"original_file"`
	DetectedAt      time.Time      `json:"detected_at"`

	TransientHandle io.ReadCloser `json:"-"`
}

// ComplaintDraft is an unfinished complaint a user explicitly saved.
type ComplaintDraft struct {
	Text         string      `json:"text"`
	IncidentDate *time.Time  `json:"incident_date,omitempty"`
	SourceURL    string      `json:"source_url,omitempty"`
	ImpactLevel  ImpactLevel `json:"impact_level,omitempty"`
	SavedAt      time.Time   `json:"saved_at"`
}

// Classification is the classifier's verdict on a submitted complaint.
type Classification struct {
	Category   ComplaintCategory `json:"category"`
	Confidence float64           `json:"confidence"`
}

// ComplaintReceipt is returned by the backend after a successful submission.
type ComplaintReceipt struct {
	ComplaintID    string         `json:"complaint_id"`
	CaseNumber     string         `json:"case_number"`
	Classification Classification `json:"classification"`
}

// UploadRecord is one past detection shown on the dashboard.
type UploadRecord struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	Verdict         Verdict   `json:"verdict"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// ComplaintRecord is one past complaint shown on the dashboard.
type ComplaintRecord struct {
	ID         string            `json:"id"`
	CaseNumber string            `json:"case_number"`
	Text       string            `json:"text"`
	Category   ComplaintCategory `json:"category"`
	Confidence float64           `json:"confidence"`
	Status     ComplaintStatus   `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// DashboardStats aggregates a user's activity.
type DashboardStats struct {
	TotalUploads    int `json:"total_uploads"`
	DeepfakeCount   int `json:"deepfake_count"`
	ComplaintCount  int `json:"complaint_count"`
	ProtectionScore int `json:"protection_score"`
}

// SystemStats aggregates activity across all users.
type SystemStats struct {
	TotalUsers         int     `json:"total_users"`
	TotalUploads       int     `json:"total_uploads"`
	TotalComplaints    int     `json:"total_complaints"`
	DeepfakeDetections int     `json:"deepfake_detections"`
	DetectionRate      float64 `json:"detection_rate"`
}

// Dashboard is the full dashboard payload for a user.
type Dashboard struct {
	Email      string            `json:"email"`
	Stats      DashboardStats    `json:"statistics"`
	Uploads    []UploadRecord    `json:"media_uploads"`
	Complaints []ComplaintRecord `json:"complaints"`
}

// Profile is the account information for the authenticated user.
type Profile struct {
	Email       string     `json:"email"`
	MemberSince time.Time  `json:"member_since"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	LoginCount  int        `json:"login_count"`
}
