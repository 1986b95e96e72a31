// Package twilio provides the Twilio REST client, TwiML documents and webhook
// request verification.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/officialmortgage/livbridge/plugin/ai"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client is a Twilio API client.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// Config configures the Twilio client.
type Config struct {
	AccountSID string
	AuthToken  string
	// FromNumber is the sender of outbound messages.
	FromNumber string
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a new Twilio client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("twilio account sid is required")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio auth token is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

// AccountSID returns the account SID.
func (c *Client) AccountSID() string {
	return c.accountSID
}

// Message represents a Twilio message resource.
type Message struct {
	SID          string `json:"sid"`
	AccountSID   string `json:"account_sid"`
	To           string `json:"to"`
	From         string `json:"from"`
	Body         string `json:"body"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	DateCreated  string `json:"date_created"`
}

// SendMessageParams are parameters for sending a message.
type SendMessageParams struct {
	To             string
	From           string
	Body           string
	StatusCallback string
}

// SendMessage sends an SMS.
func (c *Client) SendMessage(ctx context.Context, params *SendMessageParams) (*Message, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	from := params.From
	if from == "" {
		from = c.fromNumber
	}
	if from == "" {
		return nil, fmt.Errorf("twilio sender number is required")
	}

	data := url.Values{}
	data.Set("To", params.To)
	data.Set("From", from)
	data.Set("Body", params.Body)
	if params.StatusCallback != "" {
		data.Set("StatusCallback", params.StatusCallback)
	}

	var msg Message
	if err := c.post(ctx, endpoint, data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendSMS sends body to the given number from the configured sender.
func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	_, err := c.SendMessage(ctx, &SendMessageParams{To: to, Body: body})
	return err
}

// Error represents a Twilio API error.
type Error struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

// Unwrap exposes the HTTP status so ai.ClassifyError can decide on retries.
func (e *Error) Unwrap() error {
	return &ai.HTTPStatusError{StatusCode: e.Status, Body: e.Message}
}

// post performs a POST request with form data.
func (c *Client) post(ctx context.Context, url string, data url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, result)
}

// do executes a request with authentication.
func (c *Client) do(req *http.Request, result any) error {
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := Error{Status: resp.StatusCode}
		if err := json.Unmarshal(body, &apiErr); err != nil {
			return &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return &apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
