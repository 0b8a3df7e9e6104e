// Package shieldapi is the DeepShield reference backend: passcode
// authentication, media detection, complaint filing and the user dashboard.
// The client test suites run against it through httptest.
package shieldapi

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Abhayjain-py/deepshield/internal/config"
	"github.com/Abhayjain-py/deepshield/internal/domain"
)

const (
	otpLength     = 6
	rateWindow    = time.Hour
	maxDashboard  = 20
	maxComplaints = 10
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true,
	"image/bmp": true, "image/webp": true,
	"video/mp4": true, "video/avi": true, "video/quicktime": true,
	"video/x-msvideo": true, "video/x-flv": true, "video/webm": true,
	"video/x-matroska": true,
}

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
	".mp4": true, ".avi": true, ".mov": true, ".wmv": true, ".flv": true, ".webm": true, ".mkv": true,
}

// Handler serves the backend API.
type Handler struct {
	store      *Store
	cfg        *config.Server
	detector   *Detector
	classifier *Classifier
	limiter    *rateLimiter
	logger     *slog.Logger
	genOTP     func() (string, error)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithOTPGenerator replaces the passcode generator. Tests use this to issue a
// known code.
func WithOTPGenerator(fn func() (string, error)) HandlerOption {
	return func(h *Handler) { h.genOTP = fn }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates the API handler.
func NewHandler(store *Store, cfg *config.Server, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:      store,
		cfg:        cfg,
		detector:   NewDetector(),
		classifier: NewClassifier(),
		limiter:    newRateLimiter(),
		logger:     slog.Default(),
		genOTP:     randomOTP,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterRoutes registers all API routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/auth/send-otp", h.SendOTP)
	e.POST("/auth/verify-otp", h.VerifyOTP)
	e.POST("/media/detect", h.Detect, h.requireAuth)
	e.POST("/complaints/submit", h.SubmitComplaint, h.requireAuth)
	e.GET("/dashboard", h.Dashboard, h.requireAuth)
	e.GET("/profile", h.Profile, h.requireAuth)
	e.GET("/admin/stats", h.AdminStats, h.requireAuth)
}

// requireAuth verifies the bearer credential and stores the subject on the
// request context.
func (h *Handler) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return c.JSON(http.StatusUnauthorized, errBody("missing bearer credential"))
		}
		subject, err := validateToken(h.cfg.TokenSecret, parts[1])
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errBody("could not validate credentials"))
		}
		c.Set("email", subject)
		return next(c)
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// Root is the liveness probe.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "DeepShield API is running",
		"status":  "healthy",
	})
}

// Health reports service and database health.
func (h *Handler) Health(c echo.Context) error {
	dbStatus := "healthy"
	status := http.StatusOK
	if err := h.store.Ping(c.Request().Context()); err != nil {
		h.logger.Error("database health check failed", "error", err)
		dbStatus = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"status":    dbStatus,
		"database":  dbStatus,
		"timestamp": time.Now().Unix(),
	})
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

// SendOTP issues a one-time passcode for the address. The code is delivered
// out-of-band; it is never echoed back in the response.
func (h *Handler) SendOTP(c echo.Context) error {
	ctx := c.Request().Context()

	var req sendOTPRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid email address"))
	}

	if !h.limiter.Allow("otp:"+req.Email, h.cfg.OTPRateLimit, rateWindow) {
		return c.JSON(http.StatusTooManyRequests, errBody("too many passcode requests, please try again later"))
	}

	code, err := h.genOTP()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to issue passcode"))
	}

	if err := h.store.EnsureUser(ctx, req.Email); err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to issue passcode"))
	}
	expiresAt := time.Now().Add(h.cfg.OTPTTL)
	if err := h.store.CreateOTP(ctx, uuid.New().String(), req.Email, code, expiresAt); err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to issue passcode"))
	}

	// Out-of-band delivery would happen here. In local development the code
	// is visible in the server log only.
	h.logger.Info("passcode issued", "email", req.Email, "code", code)

	return c.JSON(http.StatusOK, map[string]any{
		"message":            "passcode sent",
		"expires_in_minutes": int(h.cfg.OTPTTL.Minutes()),
	})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTP exchanges a valid passcode for a signed credential.
func (h *Handler) VerifyOTP(c echo.Context) error {
	ctx := c.Request().Context()

	var req verifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	ok, err := h.store.ConsumeOTP(ctx, req.Email, req.OTP)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to verify passcode"))
	}
	if !ok {
		return c.JSON(http.StatusBadRequest, errBody("invalid or expired passcode"))
	}

	if err := h.store.RecordLogin(ctx, req.Email); err != nil {
		h.logger.Warn("failed to record login", "email", req.Email, "error", err)
	}

	token, issuedAt, expiresAt, err := mintToken(h.cfg.TokenSecret, req.Email, h.cfg.TokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to issue credential"))
	}

	h.logger.Info("passcode verified", "email", req.Email)
	return c.JSON(http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"issued_at":    issuedAt,
		"expires_at":   expiresAt,
		"user":         map[string]string{"email": req.Email},
	})
}

// Detect accepts a media upload and returns the detection verdict.
func (h *Handler) Detect(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.Get("email").(string)

	if !h.limiter.Allow("detect:"+email, h.cfg.DetectRateLimit, rateWindow) {
		return c.JSON(http.StatusTooManyRequests, errBody("too many detection requests, please try again later"))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("missing media file"))
	}
	if fileHeader.Size > h.cfg.MaxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge,
			errBody(fmt.Sprintf("file too large, maximum size is %d bytes", h.cfg.MaxUploadBytes)))
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	mimeType := fileHeader.Header.Get("Content-Type")
	if !allowedExtensions[ext] && !allowedMimeTypes[mimeType] {
		return c.JSON(http.StatusBadRequest, errBody("unsupported file type"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to read media file"))
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to read media file"))
	}
	if int64(len(content)) > h.cfg.MaxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge,
			errBody(fmt.Sprintf("file too large, maximum size is %d bytes", h.cfg.MaxUploadBytes)))
	}

	verdict, confidence := h.detector.Detect(content)

	uploadID := uuid.New().String()
	rec := domain.UploadRecord{
		ID:              uploadID,
		Filename:        fileHeader.Filename,
		Verdict:         verdict,
		ConfidenceScore: confidence,
	}
	if err := h.store.CreateUpload(ctx, uploadID, email, rec, int64(len(content)), mimeType); err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to record upload"))
	}

	h.logger.Info("media processed", "email", email, "filename", fileHeader.Filename, "verdict", verdict)
	return c.JSON(http.StatusOK, map[string]any{
		"file_id":          uploadID,
		"filename":         fileHeader.Filename,
		"verdict":          verdict,
		"confidence_score": confidence,
	})
}

type complaintRequest struct {
	ComplaintText string `json:"complaint_text"`
	ComplaintType string `json:"complaint_type"`
	IncidentDate  string `json:"incident_date"`
	SourceURL     string `json:"source_url"`
	ImpactLevel   string `json:"impact_level"`
}

// SubmitComplaint files and classifies a complaint.
func (h *Handler) SubmitComplaint(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.Get("email").(string)

	if !h.limiter.Allow("complaint:"+email, h.cfg.ComplaintRateLimit, rateWindow) {
		return c.JSON(http.StatusTooManyRequests, errBody("too many complaint submissions, please try again later"))
	}

	var req complaintRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if strings.TrimSpace(req.ComplaintText) == "" {
		return c.JSON(http.StatusBadRequest, errBody("complaint text is required"))
	}
	complaintType := req.ComplaintType
	if complaintType == "" {
		complaintType = "text"
	}

	var incidentDate *time.Time
	if req.IncidentDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.IncidentDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errBody("incident_date must be RFC 3339"))
		}
		incidentDate = &parsed
	}

	classification := h.classifier.Classify(req.ComplaintText)

	rec := domain.ComplaintRecord{
		ID:         uuid.New().String(),
		CaseNumber: caseNumber(),
		Text:       req.ComplaintText,
		Category:   classification.Category,
		Confidence: classification.Confidence,
		Status:     domain.ComplaintSubmitted,
	}
	err := h.store.CreateComplaint(ctx, rec, email, complaintType,
		domain.ImpactLevel(req.ImpactLevel), req.SourceURL, incidentDate)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to record complaint"))
	}

	h.logger.Info("complaint submitted", "email", email, "case_number", rec.CaseNumber, "category", rec.Category)
	return c.JSON(http.StatusOK, map[string]any{
		"complaint_id": rec.ID,
		"case_number":  rec.CaseNumber,
		"classification": map[string]any{
			"category":   classification.Category,
			"confidence": classification.Confidence,
		},
	})
}

// Dashboard returns the user's recent activity and statistics.
func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.Get("email").(string)

	uploads, err := h.store.ListUploads(ctx, email, maxDashboard)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to load dashboard"))
	}
	complaints, err := h.store.ListComplaints(ctx, email, maxComplaints)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to load dashboard"))
	}
	stats, err := h.store.CountStats(ctx, email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to load dashboard"))
	}

	return c.JSON(http.StatusOK, domain.Dashboard{
		Email:      email,
		Stats:      stats,
		Uploads:    uploads,
		Complaints: complaints,
	})
}

// Profile returns the authenticated user's account information.
func (h *Handler) Profile(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.Get("email").(string)

	profile, err := h.store.GetProfile(ctx, email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to load profile"))
	}
	if profile == nil {
		return c.JSON(http.StatusNotFound, errBody("user not found"))
	}
	return c.JSON(http.StatusOK, profile)
}

// AdminStats returns system-wide totals across all users.
func (h *Handler) AdminStats(c echo.Context) error {
	stats, err := h.store.CountSystemStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody("failed to load system stats"))
	}
	return c.JSON(http.StatusOK, stats)
}

// randomOTP draws a uniformly random fixed-length numeric passcode.
func randomOTP() (string, error) {
	var sb strings.Builder
	for i := 0; i < otpLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// caseNumber formats a complaint case number like DS-20250131-1A2B3C4D.
func caseNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("DS-%s-%s", time.Now().Format("20060102"), suffix)
}
