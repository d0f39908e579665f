package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/model"
)

func TestClientNew(t *testing.T) {
	c := New("https://example.com")

	if c.BaseURL != "https://example.com" {
		t.Errorf("expected base URL 'https://example.com', got '%s'", c.BaseURL)
	}
	if c.HTTPClient == nil {
		t.Error("expected non-nil HTTP client")
	}
	if c.IsAuthenticated() {
		t.Error("expected new client to not be authenticated")
	}
}

func TestListOptionsQuery(t *testing.T) {
	if q := (ListOptions{}).query(); q != "" {
		t.Fatalf("expected empty query, got %q", q)
	}
	q := ListOptions{Page: 2, Limit: 5, Search: "fly away", AuthorID: 3, SortBy: model.SortMostVoted}.query()
	want := "?author_id=3&limit=5&page=2&search=fly+away&sort_by=most_voted"
	if q != want {
		t.Fatalf("expected %q, got %q", want, q)
	}
}

func TestLoginStoresToken(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_at":   expires,
			"user":         map[string]any{"id": 7, "email": "a@example.com"},
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	user, err := c.Login("a@example.com", "password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("expected user 7, got %d", user.ID)
	}
	if c.Token != "tok" || !c.TokenExp.Equal(expires) {
		t.Fatalf("unexpected token state: %q %v", c.Token, c.TokenExp)
	}
	if !c.IsAuthenticated() {
		t.Fatalf("expected client to be authenticated")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/register":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"duplicate email"}`))
		default:
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"question 9: not found"}`))
		}
	}))
	defer ts.Close()

	c := New(ts.URL)
	if _, err := c.Register("a@example.com", "password", ""); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	_, err := c.GetQuestion(9)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}

	c.Token = "secret"
	_, err = c.GetQuestion(9)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "question 9: not found" {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}
