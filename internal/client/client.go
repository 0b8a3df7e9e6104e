// Package client is the workflow facade over the session manager, transport
// client, handoff store and notification policy. Commands call it instead of
// wiring the components themselves.
package client

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/Abhayjain-py/deepshield/internal/domain"
	"github.com/Abhayjain-py/deepshield/internal/handoff"
	"github.com/Abhayjain-py/deepshield/internal/policy"
	"github.com/Abhayjain-py/deepshield/internal/session"
	"github.com/Abhayjain-py/deepshield/internal/transport"
)

// Client ties the workflow components together. Construct it once at the
// composition root; it holds no request state of its own.
type Client struct {
	transport *transport.Client
	sessions  *session.Manager
	handoff   *handoff.Store
	drafts    *DraftStore
	policy    *policy.Policy
}

// New creates the workflow facade.
func New(tc *transport.Client, sm *session.Manager, hs *handoff.Store, ds *DraftStore, pol *policy.Policy) *Client {
	return &Client{
		transport: tc,
		sessions:  sm,
		handoff:   hs,
		drafts:    ds,
		policy:    pol,
	}
}

// Sessions exposes the session manager for command-entry gating.
func (c *Client) Sessions() *session.Manager { return c.sessions }

// Drafts exposes the complaint draft store.
func (c *Client) Drafts() *DraftStore { return c.drafts }

type detectResponse struct {
	FileID          string  `json:"file_id"`
	Filename        string  `json:"filename"`
	Verdict         string  `json:"verdict"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Detect uploads the media file for analysis and, on success, publishes the
// result to the handoff store for the results flow to consume.
func (c *Client) Detect(ctx context.Context, path string) (domain.PendingAnalysisResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.PendingAnalysisResult{}, fmt.Errorf("failed to open media file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return domain.PendingAnalysisResult{}, fmt.Errorf("failed to stat media file: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	upload := &transport.Upload{
		FileName: filepath.Base(path),
		MimeType: mimeType,
		Content:  file,
	}

	var resp detectResponse
	if err := c.transport.Call(ctx, transport.EndpointDetect, upload, &resp); err != nil {
		file.Close()
		c.policy.Handle(ctx, err)
		return domain.PendingAnalysisResult{}, err
	}

	// Rewind so the handle can serve a preview in this process.
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		file = nil
	}

	result := domain.PendingAnalysisResult{
		Verdict:         domain.Verdict(resp.Verdict),
		ConfidenceScore: resp.ConfidenceScore,
		OriginalFile: domain.FileDescriptor{
			Name:     filepath.Base(path),
			ByteSize: info.Size(),
			MimeType: mimeType,
		},
		DetectedAt: time.Now(),
	}
	if file != nil {
		result.TransientHandle = file
	}

	if err := c.handoff.Publish(ctx, result); err != nil {
		if file != nil {
			file.Close()
		}
		return domain.PendingAnalysisResult{}, fmt.Errorf("failed to publish result: %w", err)
	}
	return result, nil
}

// Results returns the pending analysis result for the results flow. The
// second return is false when nothing was published; the results view must
// redirect to the upload entry point rather than render an indeterminate
// state.
func (c *Client) Results(ctx context.Context) (domain.PendingAnalysisResult, bool, error) {
	return c.handoff.Consume(ctx)
}

// AnalyzeAnother clears the pending result so the upload flow starts fresh.
func (c *Client) AnalyzeAnother(ctx context.Context) error {
	return c.handoff.Clear(ctx)
}

type complaintRequest struct {
	ComplaintText string `json:"complaint_text"`
	ComplaintType string `json:"complaint_type"`
	IncidentDate  string `json:"incident_date,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
	ImpactLevel   string `json:"impact_level,omitempty"`
}

// SubmitComplaint files the complaint. A saved draft is not cleared by a
// successful submission; clearing is a separate explicit user action.
func (c *Client) SubmitComplaint(ctx context.Context, draft domain.ComplaintDraft) (domain.ComplaintReceipt, error) {
	req := complaintRequest{
		ComplaintText: draft.Text,
		ComplaintType: "text",
		SourceURL:     draft.SourceURL,
		ImpactLevel:   string(draft.ImpactLevel),
	}
	if draft.IncidentDate != nil {
		req.IncidentDate = draft.IncidentDate.Format(time.RFC3339)
	}

	var receipt domain.ComplaintReceipt
	if err := c.transport.Call(ctx, transport.EndpointComplaint, req, &receipt); err != nil {
		c.policy.Handle(ctx, err)
		return domain.ComplaintReceipt{}, err
	}
	return receipt, nil
}

// Dashboard fetches the user's past uploads and complaints.
func (c *Client) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	var dashboard domain.Dashboard
	if err := c.transport.Call(ctx, transport.EndpointDashboard, nil, &dashboard); err != nil {
		c.policy.Handle(ctx, err)
		return domain.Dashboard{}, err
	}
	return dashboard, nil
}

// Profile fetches the authenticated user's account information.
func (c *Client) Profile(ctx context.Context) (domain.Profile, error) {
	var profile domain.Profile
	if err := c.transport.Call(ctx, transport.EndpointProfile, nil, &profile); err != nil {
		c.policy.Handle(ctx, err)
		return domain.Profile{}, err
	}
	return profile, nil
}

// Login initiates the passcode challenge for identifier.
func (c *Client) Login(ctx context.Context, identifier string) error {
	err := c.sessions.InitiateChallenge(ctx, identifier)
	if err != nil && !isLocal(err) {
		c.policy.Handle(ctx, err)
	}
	return err
}

// Verify completes the passcode challenge.
func (c *Client) Verify(ctx context.Context, identifier, passcode string) (domain.Session, error) {
	sess, err := c.sessions.CompleteChallenge(ctx, identifier, passcode)
	if err != nil && !isLocal(err) {
		c.policy.Handle(ctx, err)
	}
	return sess, err
}

// Logout tears the session down.
func (c *Client) Logout(ctx context.Context) error {
	return c.sessions.Terminate(ctx)
}

// Health probes backend liveness.
func (c *Client) Health(ctx context.Context) error {
	if err := c.transport.Call(ctx, transport.EndpointHealth, nil, nil); err != nil {
		c.policy.Handle(ctx, err)
		return err
	}
	return nil
}

// isLocal reports whether err is a pre-network validation failure, which is
// reported synchronously to the caller and never routed through the policy.
func isLocal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, session.ErrInvalidIdentifier) ||
		errors.Is(err, session.ErrInvalidPasscode) ||
		errors.Is(err, session.ErrNoChallenge)
}
