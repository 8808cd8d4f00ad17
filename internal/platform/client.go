// Package platform is a thin client for the video-meeting platform REST API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
)

const maxErrorBody = 4 << 10

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Client calls the platform API with a caller-supplied bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
}

// DownloadLinks are the short-lived direct download URLs in a recording's metadata.
type DownloadLinks struct {
	RecordingDownloadLink  string    `json:"recordingDownloadLink"`
	AudioDownloadLink      string    `json:"audioDownloadLink"`
	TranscriptDownloadLink string    `json:"transcriptDownloadLink"`
	Expiration             time.Time `json:"expiration"`
}

// RecordingDetails is the metadata response for one recording.
type RecordingDetails struct {
	ID                           string         `json:"id"`
	MeetingID                    string         `json:"meetingId"`
	Topic                        string         `json:"topic"`
	HostEmail                    string         `json:"hostEmail"`
	SiteURL                      string         `json:"siteUrl"`
	CreateTime                   time.Time      `json:"createTime"`
	Format                       string         `json:"format"`
	SizeBytes                    int64          `json:"sizeBytes"`
	TemporaryDirectDownloadLinks *DownloadLinks `json:"temporaryDirectDownloadLinks"`
}

// RecordingLink returns the media download link, or "".
func (d *RecordingDetails) RecordingLink() string {
	if d == nil || d.TemporaryDirectDownloadLinks == nil {
		return ""
	}
	return d.TemporaryDirectDownloadLinks.RecordingDownloadLink
}

// TranscriptLink returns the transcript download link, or "".
func (d *RecordingDetails) TranscriptLink() string {
	if d == nil || d.TemporaryDirectDownloadLinks == nil {
		return ""
	}
	return d.TemporaryDirectDownloadLinks.TranscriptDownloadLink
}

// Download is an open artifact stream. Caller must close Body.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// NewClient creates a platform API client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://webexapis.com/v1"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "practicetools-ingest/1.0"
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, userAgent: userAgent, logger: logger}
}

// GetRecording fetches recording metadata. hostEmail is required by the platform to see
// recordings owned by another user.
func (c *Client) GetRecording(ctx context.Context, token, recordingID, hostEmail string) (*RecordingDetails, error) {
	q := url.Values{}
	if hostEmail != "" {
		q.Set("hostEmail", hostEmail)
	}
	endpoint := c.baseURL + "/recordings/" + url.PathEscape(recordingID)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var out RecordingDetails
	if err := c.doJSON(ctx, http.MethodGet, endpoint, token, nil, &out, "get recording"); err != nil {
		return nil, err
	}
	return &out, nil
}

// LookupPersonID resolves an email to a platform user id through the people directory.
func (c *Client) LookupPersonID(ctx context.Context, token, email string) (string, error) {
	endpoint := c.baseURL + "/people?" + url.Values{"email": {email}}.Encode()
	var out struct {
		Items []struct {
			ID     string   `json:"id"`
			Emails []string `json:"emails"`
		} `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, token, nil, &out, "lookup person"); err != nil {
		return "", err
	}
	if len(out.Items) == 0 {
		return "", fmt.Errorf("lookup person %s: %w", email, apperrors.ErrNotFound)
	}
	return out.Items[0].ID, nil
}

// PostMessage posts a markdown message to a room.
func (c *Client) PostMessage(ctx context.Context, token, roomID, markdown string) error {
	body := map[string]string{"roomId": roomID, "markdown": markdown}
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/messages", token, body, nil, "post message")
}

// Download opens a direct download link. The token is sent when non-empty.
func (c *Client) Download(ctx context.Context, token, link string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.decorate(req, token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.TransientNetworkError{Op: "download", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.statusError("download", resp)
	}
	return &Download{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

func (c *Client) decorate(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, token string, in, out interface{}, op string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	c.decorate(req, token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperrors.TransientNetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	status := resp.StatusCode
	c.logger.Debug("platform call failed", zap.String("op", op), zap.Int("status", status), zap.ByteString("body", raw))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &apperrors.AuthError{Status: status, Body: string(raw)}
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return &apperrors.TransientNetworkError{Op: op, Status: status}
	default:
		return fmt.Errorf("%s: status %d: %s", op, status, raw)
	}
}
