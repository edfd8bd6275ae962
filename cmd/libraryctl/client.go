package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the body shape answered by every api endpoint.
type Envelope struct {
	RequestID string              `json:"requestid"`
	Status    int                 `json:"status"`
	Message   string              `json:"message"`
	Total     *int                `json:"total,omitempty"`
	Data      jsoniter.RawMessage `json:"data"`
}

// Result holds the http status with the decoded envelope and the raw body.
type Result struct {
	StatusCode int
	Envelope   Envelope
	Body       []byte
}

// OK tells if the call succeeded.
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client calls the lending api. The token is sent as bearer when set.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken replaces the bearer token used by next calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (*Result, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}
	result := &Result{StatusCode: resp.StatusCode, Body: data}
	if len(data) > 0 {
		// Bodies which are not envelopes are still returned raw.
		_ = json.Unmarshal(data, &result.Envelope)
	}
	return result, nil
}

type signupPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type bookPayload struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Category    string `json:"category"`
	TotalCopies int    `json:"total_copies"`
}

type borrowPayload struct {
	BookID int64 `json:"book_id"`
	UserID int64 `json:"user_id"`
}

type tokenData struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (c *Client) Signup(ctx context.Context, p signupPayload) (*Result, error) {
	return c.do(ctx, http.MethodPost, "/auth/signup", p)
}

// Login returns the call result with the access token when it succeeded.
func (c *Client) Login(ctx context.Context, p loginPayload) (*Result, string, error) {
	res, err := c.do(ctx, http.MethodPost, "/auth/login", p)
	if err != nil || !res.OK() {
		return res, "", err
	}
	var token tokenData
	if err = json.Unmarshal(res.Envelope.Data, &token); err != nil {
		return res, "", fmt.Errorf("failed to decode token: %w", err)
	}
	return res, token.AccessToken, nil
}

func (c *Client) CreateBook(ctx context.Context, p bookPayload) (*Result, error) {
	return c.do(ctx, http.MethodPost, "/books", p)
}

// SearchBooks sends only the filters which are set. An empty
// category is a filter of its own.
func (c *Client) SearchBooks(ctx context.Context, category *string, available *bool) (*Result, error) {
	q := url.Values{}
	if category != nil {
		q.Set("category", *category)
	}
	if available != nil {
		q.Set("available", fmt.Sprint(*available))
	}
	path := "/books"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Borrow(ctx context.Context, p borrowPayload) (*Result, error) {
	return c.do(ctx, http.MethodPost, "/loans/borrow", p)
}

func (c *Client) MyLoans(ctx context.Context) (*Result, error) {
	return c.do(ctx, http.MethodGet, "/users/me/loans", nil)
}
