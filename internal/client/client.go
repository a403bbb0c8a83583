// Package client talks to the companion HTTP API on behalf of one attendee.
// It implements selection.Backend so a Synchronizer can run against a live
// service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/conference-companion/internal/feed"
	"github.com/example/conference-companion/internal/selection"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("companion api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("companion api: %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is an authenticated API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for baseURL authenticating with the session token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ selection.Backend = (*Client)(nil)

type calendarDTO struct {
	ID               string   `json:"id"`
	FeedID           string   `json:"feedId"`
	OwnerUserID      string   `json:"ownerUserId"`
	SelectedEventIDs []string `json:"selectedEventIds"`
}

type calendarEnvelope struct {
	Message  string       `json:"message"`
	Calendar *calendarDTO `json:"calendar"`
}

// Fetch returns the attendee's document, if any.
func (c *Client) Fetch(ctx context.Context) (selection.Document, bool, error) {
	var env calendarEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/calendar", nil, &env); err != nil {
		return selection.Document{}, false, err
	}
	if env.Calendar == nil {
		return selection.Document{}, false, nil
	}
	return toDocument(*env.Calendar), true, nil
}

// Create provisions the document; an existing one is returned unchanged.
func (c *Client) Create(ctx context.Context, ids []string) (selection.Document, error) {
	var env calendarEnvelope
	body := map[string][]string{"selectedEventIds": nonNil(ids)}
	if err := c.do(ctx, http.MethodPost, "/api/calendar", body, &env); err != nil {
		return selection.Document{}, err
	}
	if env.Calendar == nil {
		return selection.Document{}, fmt.Errorf("companion api: create returned no calendar")
	}
	return toDocument(*env.Calendar), nil
}

// Update replaces the selection of feedID.
func (c *Client) Update(ctx context.Context, feedID string, ids []string) error {
	body := map[string]any{"feedId": feedID, "selectedEventIds": nonNil(ids)}
	return c.do(ctx, http.MethodPut, "/api/calendar", body, nil)
}

// Delete removes the document.
func (c *Client) Delete(ctx context.Context, feedID string) error {
	return c.do(ctx, http.MethodDelete, "/api/calendar?feedId="+url.QueryEscape(feedID), nil, nil)
}

// Session is a catalog entry as listed for the caller.
type Session struct {
	DocumentID string            `json:"documentId"`
	Title      string            `json:"title"`
	Track      string            `json:"track"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    time.Time         `json:"endTime"`
	Room       string            `json:"room"`
	Speakers   map[string]string `json:"speakers"`
	Selected   bool              `json:"selected"`
	Conflicts  []string          `json:"conflicts"`
}

// Sessions lists the catalog, filtered by query when not blank.
func (c *Client) Sessions(ctx context.Context, query string) ([]Session, error) {
	path := "/api/sessions"
	if q := strings.TrimSpace(query); q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// FeedURL is the public feed address for feedID.
func (c *Client) FeedURL(feedID string) string {
	return c.baseURL + "/api/calendar/" + url.PathEscape(feedID)
}

// WebcalURL is the calendar subscription link for feedID.
func (c *Client) WebcalURL(feedID string) string {
	return feed.WebcalURL(c.FeedURL(feedID))
}

// Feed downloads the rendered calendar for feedID.
func (c *Client) Feed(ctx context.Context, feedID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL(feedID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		ErrorCode string            `json:"error_code"`
		Message   string            `json:"message"`
		Errors    map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.ErrorCode
		if body.Message != "" {
			apiErr.Message = body.Message
		}
		apiErr.Fields = body.Errors
	}
	return apiErr
}

func toDocument(dto calendarDTO) selection.Document {
	return selection.Document{FeedID: dto.FeedID, SelectedEventIDs: dto.SelectedEventIDs}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
