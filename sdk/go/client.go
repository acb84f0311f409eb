package expertlinesdk

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
)

// Client is a minimal Expertline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Request represents the API consultation request model (partial).
type Request struct {
	ID             string   `json:"id"`
	CreatorID      string   `json:"creator_id"`
	Title          string   `json:"title"`
	RawDescription string   `json:"raw_description"`
	RefinedSummary *string  `json:"refined_summary,omitempty"`
	Urgency        string   `json:"urgency"`
	Status         string   `json:"status"`
	Skills         []string `json:"skills,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// Offer represents a consultant's offer on a request.
type Offer struct {
	ID                string `json:"id"`
	RequestID         string `json:"request_id"`
	ConsultantID      string `json:"consultant_id"`
	Message           string `json:"message"`
	ProposedRateCents int64  `json:"proposed_rate_cents"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
}

// Engagement represents an active consultation workspace (partial).
type Engagement struct {
	ID        string  `json:"id"`
	BookingID string  `json:"booking_id"`
	Status    string  `json:"status"`
	VideoLink *string `json:"video_link,omitempty"`
	Agenda    *string `json:"agenda,omitempty"`
}

// Accepted is the result of accepting an offer.
type Accepted struct {
	Offer      Offer      `json:"offer"`
	Engagement Engagement `json:"engagement"`
	Booking    struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"booking"`
	Payment struct {
		ID          string `json:"id"`
		AmountCents int64  `json:"amount_cents"`
		Status      string `json:"status"`
	} `json:"payment"`
}

// TransferPack represents the knowledge transfer document.
type TransferPack struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagement_id"`
	Summary      string `json:"summary"`
	KeyDecisions string `json:"key_decisions"`
	Runbook      string `json:"runbook,omitempty"`
	IsFinalized  bool   `json:"is_finalized"`
}

// Message is a workspace chat entry.
type Message struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagement_id"`
	AuthorID     string `json:"author_id"`
	Body         string `json:"body"`
	CreatedAt    string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedRequests wraps list responses with cursors.
type PaginatedRequests struct {
	Items      []Request `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// CreateRequest creates a draft request.
func (c *Client) CreateRequest(ctx context.Context, title, description string, skills []string) (Request, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"skills":      skills,
	}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests", body, &resp)
	return resp, err
}

// PublishRequest opens a draft request to consultants.
func (c *Client) PublishRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("requests/%s/publish", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Requests returns published requests.
func (c *Client) Requests(ctx context.Context, limit int) ([]Request, error) {
	page, err := c.RequestsPage(ctx, limit, "")
	return page.Items, err
}

// RequestsPage returns a paginated request listing.
func (c *Client) RequestsPage(ctx context.Context, limit int, cursor string) (PaginatedRequests, error) {
	endpoint := "requests"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedRequests
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateOffer makes an offer on a published request. A rate of zero lets the
// server fall back to the consultant's profile rate.
func (c *Client) CreateOffer(ctx context.Context, requestID, message string, rateCents int64) (Offer, error) {
	body := map[string]any{
		"request_id": requestID,
		"message":    message,
	}
	if rateCents > 0 {
		body["proposed_rate_cents"] = rateCents
	}
	var resp Offer
	err := c.do(ctx, http.MethodPost, "offers", body, &resp)
	return resp, err
}

// AcceptOffer accepts an offer, booking the engagement.
func (c *Client) AcceptOffer(ctx context.Context, offerID string) (Accepted, error) {
	var resp Accepted
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("offers/%s/accept", url.PathEscape(offerID)), map[string]any{}, &resp)
	return resp, err
}

// SendMessage posts a message into the engagement workspace.
func (c *Client) SendMessage(ctx context.Context, engagementID, text string) (Message, error) {
	body := map[string]any{"body": text}
	var resp Message
	endpoint := fmt.Sprintf("engagements/%s/messages", url.PathEscape(engagementID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GenerateTransferPack asks the service to draft the transfer pack.
func (c *Client) GenerateTransferPack(ctx context.Context, engagementID string) (TransferPack, error) {
	var resp TransferPack
	endpoint := fmt.Sprintf("engagements/%s/transfer-pack/generate", url.PathEscape(engagementID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// FinalizeTransferPack locks the transfer pack.
func (c *Client) FinalizeTransferPack(ctx context.Context, engagementID string) (TransferPack, error) {
	var resp TransferPack
	endpoint := fmt.Sprintf("engagements/%s/transfer-pack/finalize", url.PathEscape(engagementID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CompleteEngagement completes the engagement; the transfer pack must be
// finalized first.
func (c *Client) CompleteEngagement(ctx context.Context, engagementID string) (Engagement, error) {
	var resp Engagement
	endpoint := fmt.Sprintf("engagements/%s/complete", url.PathEscape(engagementID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
