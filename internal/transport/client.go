// Package transport is the only component permitted to perform network I/O
// against the DeepShield backend. It gives every call a uniform
// request/response shape, attaches the bearer credential, and normalizes all
// failures into a single classified error value.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// PayloadKind selects how the request body is encoded.
type PayloadKind string

const (
	PayloadJSON      PayloadKind = "json"
	PayloadMultipart PayloadKind = "multipart"
)

// Endpoint describes one backend call.
type Endpoint struct {
	Method          string
	Path            string
	Kind            PayloadKind
	RequiresSession bool
}

// The backend surface consumed by the client.
var (
	EndpointSendOTP   = Endpoint{Method: http.MethodPost, Path: "/auth/send-otp", Kind: PayloadJSON}
	EndpointVerifyOTP = Endpoint{Method: http.MethodPost, Path: "/auth/verify-otp", Kind: PayloadJSON}
	EndpointDetect    = Endpoint{Method: http.MethodPost, Path: "/media/detect", Kind: PayloadMultipart, RequiresSession: true}
	EndpointComplaint = Endpoint{Method: http.MethodPost, Path: "/complaints/submit", Kind: PayloadJSON, RequiresSession: true}
	EndpointDashboard = Endpoint{Method: http.MethodGet, Path: "/dashboard", Kind: PayloadJSON, RequiresSession: true}
	EndpointProfile   = Endpoint{Method: http.MethodGet, Path: "/profile", Kind: PayloadJSON, RequiresSession: true}
	EndpointHealth    = Endpoint{Method: http.MethodGet, Path: "/health", Kind: PayloadJSON}
)

// CredentialSource exposes the current session credential. The second return
// is false when no valid session exists.
type CredentialSource interface {
	Credential() (string, bool)
}

// Upload is the payload for multipart endpoints.
type Upload struct {
	FieldName string // form field, defaults to "file"
	FileName  string
	MimeType  string
	Content   io.Reader
	Fields    map[string]string // extra form fields
}

// Client issues HTTP requests against the backend. JSON calls and multipart
// uploads use separate timeouts, since uploads legitimately take longer.
type Client struct {
	baseURL      string
	creds        CredentialSource
	jsonClient   *http.Client
	uploadClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts overrides the JSON and multipart timeouts.
func WithTimeouts(jsonTimeout, uploadTimeout time.Duration) Option {
	return func(c *Client) {
		c.jsonClient.Timeout = jsonTimeout
		c.uploadClient.Timeout = uploadTimeout
	}
}

// NewClient creates a transport client. creds may be nil for a client that
// only reaches unauthenticated endpoints.
func NewClient(baseURL string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		creds:        creds,
		jsonClient:   &http.Client{Timeout: 10 * time.Second},
		uploadClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// errorEnvelope is the backend's error body shape. echo's default error
// handler writes {"message": ...}; our handlers write {"error": ...}.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Call issues one request. payload is the JSON body (or *Upload for
// multipart endpoints); out, when non-nil, receives the decoded success body.
// Every failure is returned as a classified *Error.
func (c *Client) Call(ctx context.Context, ep Endpoint, payload any, out any) error {
	if ep.RequiresSession {
		// A call that is certain to be rejected is not worth a round trip.
		if c.creds == nil {
			return authenticationRequired()
		}
		if _, ok := c.creds.Credential(); !ok {
			return authenticationRequired()
		}
	}

	req, err := c.newRequest(ctx, ep, payload)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: err.Error(), Local: true}
	}

	if c.creds != nil {
		if cred, ok := c.creds.Credential(); ok {
			req.Header.Set("Authorization", "Bearer "+cred)
		}
	}

	client := c.jsonClient
	if ep.Kind == PayloadMultipart {
		client = c.uploadClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := serverMessage(body)
		return &Error{Kind: classify(resp.StatusCode), Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return &Error{Kind: KindUnknown, Status: resp.StatusCode,
				Message: fmt.Sprintf("failed to decode response: %v", err)}
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, ep Endpoint, payload any) (*http.Request, error) {
	url := c.baseURL + ep.Path

	if ep.Kind == PayloadMultipart {
		upload, ok := payload.(*Upload)
		if !ok {
			return nil, fmt.Errorf("multipart endpoint %s requires an *Upload payload", ep.Path)
		}
		return c.newMultipartRequest(ctx, ep, url, upload)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) newMultipartRequest(ctx context.Context, ep Endpoint, url string, upload *Upload) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	field := upload.FieldName
	if field == "" {
		field = "file"
	}
	part, err := writer.CreateFormFile(field, upload.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return nil, fmt.Errorf("failed to copy upload content: %w", err)
	}
	for k, v := range upload.Fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

func serverMessage(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(body))
}
