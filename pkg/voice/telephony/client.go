// Package telephony places and tears down outbound calls through a
// Twilio-shaped REST API and points the provider's media stream at the
// gateway's media endpoint.
package telephony

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Caller is the narrow surface the orchestrator needs.
type Caller interface {
	StartCall(ctx context.Context, phoneNumber, sessionID string) (providerCallID string, err error)
	EndCall(ctx context.Context, providerCallID string) error
}

type Client struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	FromNumber string

	// MediaStreamURL is the public wss address of the media gateway, handed
	// to the provider so it streams call audio back to us.
	MediaStreamURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

type callResource struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StartCall places an outbound call whose audio is streamed to the media
// gateway tagged with sessionID, and returns the provider's call id.
func (c *Client) StartCall(ctx context.Context, phoneNumber, sessionID string) (string, error) {
	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("From", c.FromNumber)
	form.Set("Twiml", streamTwiml(c.MediaStreamURL, sessionID))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", strings.TrimRight(c.BaseURL, "/"), c.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("telephony start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("telephony start: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("telephony start: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var call callResource
	if err := json.Unmarshal(body, &call); err != nil {
		return "", fmt.Errorf("telephony start decode: %w", err)
	}
	if strings.TrimSpace(call.Sid) == "" {
		return "", fmt.Errorf("telephony start: response missing call sid")
	}
	c.logger().Info("call placed", "provider_call_id", call.Sid, "session_id", sessionID)
	return call.Sid, nil
}

// EndCall completes an in-progress call.
func (c *Client) EndCall(ctx context.Context, providerCallID string) error {
	form := url.Values{}
	form.Set("Status", "completed")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", strings.TrimRight(c.BaseURL, "/"), c.AccountSID, url.PathEscape(providerCallID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telephony end request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("telephony end: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telephony end: status %d", resp.StatusCode)
	}
	c.logger().Info("call ended", "provider_call_id", providerCallID)
	return nil
}

// streamTwiml builds the call instruction connecting the answered call to
// the media gateway, carrying the session id both on the stream URL and as
// a custom parameter for the start handshake.
func streamTwiml(mediaStreamURL, sessionID string) string {
	streamURL := strings.TrimRight(mediaStreamURL, "/") + "?sessionId=" + url.QueryEscape(sessionID)
	return fmt.Sprintf(
		`<Response><Connect><Stream url=%s><Parameter name="sessionId" value=%s/></Stream></Connect></Response>`,
		xmlAttr(streamURL), xmlAttr(sessionID),
	)
}

func xmlAttr(v string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(v))
	return `"` + sb.String() + `"`
}
