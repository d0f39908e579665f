// Package client provides a Go client for the pressbutton API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/model"
)

// Client is a pressbutton API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	TokenExp   time.Time
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

var ErrAlreadyRegistered = errors.New("already registered")

// New creates a new client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// IsAuthenticated returns true if the client holds an unexpired token.
func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

// Register creates a new user account.
func (c *Client) Register(email, password, name string) (*model.User, error) {
	reqBody := map[string]string{"email": email, "password": password}
	if name != "" {
		reqBody["name"] = name
	}
	var user model.User
	if err := c.call(http.MethodPost, "/api/auth/register", reqBody, &user); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return nil, ErrAlreadyRegistered
		}
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(email, password string) (*model.User, error) {
	var result struct {
		model.Token
		User model.User `json:"user"`
	}
	if err := c.call(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &result); err != nil {
		return nil, err
	}
	c.Token = result.AccessToken
	c.TokenExp = result.ExpiresAt
	return &result.User, nil
}

// RegisterAndLogin registers (if needed) and logs in.
func (c *Client) RegisterAndLogin(email, password, name string) (*model.User, error) {
	if _, err := c.Register(email, password, name); err != nil && !errors.Is(err, ErrAlreadyRegistered) {
		return nil, fmt.Errorf("register: %w", err)
	}
	return c.Login(email, password)
}

// Me returns the authenticated user.
func (c *Client) Me() (*model.User, error) {
	var user model.User
	if err := c.call(http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListOptions narrows a question listing. Zero values use server defaults.
type ListOptions struct {
	Page     int
	Limit    int
	Search   string
	AuthorID int64
	SortBy   model.SortOrder
}

func (o ListOptions) query() string {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	if o.AuthorID > 0 {
		v.Set("author_id", strconv.FormatInt(o.AuthorID, 10))
	}
	if o.SortBy != "" {
		v.Set("sort_by", string(o.SortBy))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// ListQuestions fetches one page of questions.
func (c *Client) ListQuestions(opts ListOptions) (*model.QuestionPage, error) {
	var page model.QuestionPage
	if err := c.call(http.MethodGet, "/api/questions"+opts.query(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateQuestion posts a new question.
func (c *Client) CreateQuestion(positive, negative string) (*model.Question, error) {
	reqBody := map[string]string{"positive_outcome": positive, "negative_outcome": negative}
	var q model.Question
	if err := c.call(http.MethodPost, "/api/questions", reqBody, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuestion fetches a single question.
func (c *Client) GetQuestion(id int64) (*model.Question, error) {
	var q model.Question
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/questions/%d", id), nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// DeleteQuestion deletes a question you own along with its votes and comments.
func (c *Client) DeleteQuestion(id int64) error {
	return c.call(http.MethodDelete, fmt.Sprintf("/api/questions/%d", id), nil, nil)
}

// Vote records or replaces your vote on a question.
func (c *Client) Vote(questionID int64, choice model.Choice) (*model.Vote, error) {
	var v model.Vote
	if err := c.call(http.MethodPost, fmt.Sprintf("/api/questions/%d/vote", questionID), map[string]string{"choice": string(choice)}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// MyVote returns your current vote on a question.
func (c *Client) MyVote(questionID int64) (*model.Vote, error) {
	var v model.Vote
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/questions/%d/vote", questionID), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// VoteStatus fetches the aggregate vote counts for a question.
func (c *Client) VoteStatus(questionID int64) (*model.VoteStatus, error) {
	var st model.VoteStatus
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/questions/%d/vote-status", questionID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// AddComment posts a comment on a question.
func (c *Client) AddComment(questionID int64, content string) (*model.Comment, error) {
	var cm model.Comment
	if err := c.call(http.MethodPost, fmt.Sprintf("/api/questions/%d/comments", questionID), map[string]string{"content": content}, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

// ListComments fetches one page of comments on a question.
func (c *Client) ListComments(questionID int64, page, limit int) (*model.CommentPage, error) {
	path := fmt.Sprintf("/api/questions/%d/comments", questionID)
	if q := (ListOptions{Page: page, Limit: limit}).query(); q != "" {
		path += q
	}
	var result model.CommentPage
	if err := c.call(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteComment deletes a comment you wrote.
func (c *Client) DeleteComment(id int64) error {
	return c.call(http.MethodDelete, fmt.Sprintf("/api/comments/%d", id), nil, nil)
}

// call performs the request and decodes a 2xx body into out when out is non-nil.
func (c *Client) call(method, path string, body, out any) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error string `json:"error"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doRequest performs an HTTP request, attaching the bearer token if present.
func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers a user named name and returns a
// logged-in client for it.
func (h *TestHelper) CreateAuthenticatedClient(name string) (*Client, *model.User, error) {
	c := New(h.BaseURL)
	user, err := c.RegisterAndLogin(name+"@example.com", "password-"+name, name)
	if err != nil {
		return nil, nil, err
	}
	return c, user, nil
}

// GetToken registers a user (if needed) and returns an access token.
func (h *TestHelper) GetToken(name string) (string, error) {
	c, _, err := h.CreateAuthenticatedClient(name)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}
