// Package salt provides access to the SALT proposal-management API.
//
// All requests go through a Session, which holds the base URL and, after a
// successful login, the bearer token sent with every request. Sessions are
// constructed explicitly and passed to the packages that need them; there is
// no process-wide default.
package salt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 30 * time.Second

// Session makes authenticated HTTP requests to the SALT API server.
// It is safe for concurrent use.
type Session struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) SessionOption {
	return func(s *Session) {
		s.httpClient = client
	}
}

// WithAccessToken sets an access token obtained out of band, so the session
// starts out logged in.
func WithAccessToken(token string) SessionOption {
	return func(s *Session) {
		s.token = token
	}
}

// NewSession creates a Session for the API server at baseURL.
// The base URL must not have a trailing slash.
func NewSession(baseURL string, opts ...SessionOption) (*Session, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL must not be empty")
	}
	if strings.HasSuffix(baseURL, "/") {
		return nil, fmt.Errorf("base URL must not have a trailing slash")
	}

	s := &Session{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BaseURL returns the base URL relative to which endpoints are resolved.
func (s *Session) BaseURL() string {
	return s.baseURL
}

// LoggedIn reports whether the session currently holds an access token.
func (s *Session) LoggedIn() bool {
	return s.AccessToken() != ""
}

// AccessToken returns the current access token, or an empty string when the
// session is not logged in.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login requests an API token for the given credentials and stores it, so
// that it is sent in an Authorization header with all further requests.
func (s *Session) Login(ctx context.Context, username, password string) error {
	data := url.Values{}
	data.Set("username", username)
	data.Set("password", password)

	resp, err := s.PostForm(ctx, "/token", data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    "the server response cannot be parsed",
		}
	}

	s.mu.Lock()
	s.token = body.Token
	s.mu.Unlock()
	return nil
}

// Logout discards the access token. It does nothing if the session is not
// logged in.
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// RequestOptions carries the optional parts of an API request.
type RequestOptions struct {
	// Query is appended to the endpoint as a query string.
	Query url.Values
	// Body is the request body, if any.
	Body io.Reader
	// ContentType is the Content-Type header for the body.
	ContentType string
}

// Request makes an HTTP request to the API server and returns the response.
//
// The endpoint is the path relative to the base URL, such as "/status". It
// must start with a single slash and must not be a full URL. If the server
// responds with a status code of 400 or above, the response body is consumed
// and an *APIError is returned instead.
func (s *Session) Request(ctx context.Context, method, endpoint string, opts *RequestOptions) (*http.Response, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("endpoint must be a path relative to the base URL, not a full URL: %q", endpoint)
	}
	if !strings.HasPrefix(endpoint, "/") || strings.HasPrefix(endpoint, "//") {
		return nil, fmt.Errorf("endpoint must start with a single slash: %q", endpoint)
	}

	if opts == nil {
		opts = &RequestOptions{}
	}

	reqURL := s.baseURL + endpoint
	if len(opts.Query) > 0 {
		reqURL += "?" + opts.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, opts.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if token := s.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Get makes a GET request to the API server.
func (s *Session) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	return s.Request(ctx, http.MethodGet, endpoint, &RequestOptions{Query: query})
}

// Post makes a POST request with the given body to the API server.
func (s *Session) Post(ctx context.Context, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	return s.Request(ctx, http.MethodPost, endpoint, &RequestOptions{Body: body, ContentType: contentType})
}

// PostForm makes a POST request with form-encoded data to the API server.
func (s *Session) PostForm(ctx context.Context, endpoint string, data url.Values) (*http.Response, error) {
	return s.Post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(data.Encode()))
}

// Delete makes a DELETE request to the API server.
func (s *Session) Delete(ctx context.Context, endpoint string) (*http.Response, error) {
	return s.Request(ctx, http.MethodDelete, endpoint, nil)
}
