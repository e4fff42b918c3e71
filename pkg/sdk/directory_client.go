package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultPageSize is the number of records requested when no limit is given.
const DefaultPageSize = 10

// Client provides a high-level interface to the directory users API.
// Each call acquires a new token and performs exactly one API request.
type Client struct {
	baseURL      string
	tokens       TokenProvider
	httpClient   *http.Client
	tenantDomain string
	logger       *zap.SugaredLogger
}

// ClientOptions configures SDK client construction.
type ClientOptions struct {
	HTTPClient   *http.Client
	TenantDomain string
	Logger       *zap.SugaredLogger
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = client
	}
}

// WithTenantDomain sets the domain used to build principal names for new users.
func WithTenantDomain(domain string) ClientOption {
	return func(opts *ClientOptions) {
		opts.TenantDomain = domain
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.SugaredLogger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// NewClient creates a directory client for the API rooted at baseURL
// (e.g. "https://graph.microsoft.com/v1.0").
// http.DefaultClient is used when no HTTP client is supplied.
func NewClient(baseURL string, tokens TokenProvider, optFns ...ClientOption) *Client {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokens:       tokens,
		httpClient:   opts.HTTPClient,
		tenantDomain: opts.TenantDomain,
		logger:       opts.Logger,
	}
}

// ListUsers returns at most limit users from the first page of the users collection,
// even when the server returns more rows than requested.
// A non-positive limit falls back to DefaultPageSize.
func (c *Client) ListUsers(ctx context.Context, limit int) ([]User, error) {
	size := pageSize(limit)
	params := url.Values{}
	params.Set("$top", strconv.Itoa(size))

	var page userCollection
	if err := c.get(ctx, "/users", params, &page); err != nil {
		return nil, err
	}
	return firstUsers(page.Value, size), nil
}

// SearchUsers returns at most limit users whose display name or mail starts with query.
func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}

	size := pageSize(limit)
	params := url.Values{}
	params.Set("$filter", BuildStartsWithFilter(query, SearchFields...))
	params.Set("$top", strconv.Itoa(size))

	var page userCollection
	if err := c.get(ctx, "/users", params, &page); err != nil {
		return nil, err
	}
	return firstUsers(page.Value, size), nil
}

// CreateUser creates an enabled account named username@<tenant domain> that must
// change its password at next sign-in. The record returned by the server is returned.
func (c *Client) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	if c.tenantDomain == "" {
		return nil, &ConfigurationError{Missing: []string{"tenant_domain"}}
	}
	if input.DisplayName == "" || input.Username == "" || input.Password == "" {
		return nil, fmt.Errorf("display name, username and password are required")
	}

	body := createUserRequest{
		AccountEnabled:    true,
		DisplayName:       input.DisplayName,
		MailNickname:      input.Username,
		UserPrincipalName: c.PrincipalName(input.Username),
		PasswordProfile: passwordProfile{
			ForceChangePasswordNextSignIn: true,
			Password:                      input.Password,
		},
	}

	var created User
	if err := c.post(ctx, "/users", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteUser deletes the user identified by object id or principal name.
// Only 204 No Content and 202 Accepted count as success.
func (c *Client) DeleteUser(ctx context.Context, identifier string) error {
	if identifier == "" {
		return fmt.Errorf("user identifier is required")
	}

	path := "/users/" + url.PathEscape(identifier)
	resp, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
		return newDirectoryRequestError(http.MethodDelete, path, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// PrincipalName returns username@<tenant domain>.
func (c *Client) PrincipalName(username string) string {
	return username + "@" + c.tenantDomain
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(http.MethodGet, path, resp, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(http.MethodPost, path, resp, out)
}

// do acquires a fresh token and sends a single request; the caller closes the body.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	requestID := uuid.NewString()
	req.Header.Set("client-request-id", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debugw("directory request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("directory request %s %s failed: %w", method, path, err)
	}

	c.logger.Debugw("directory request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)
	return resp, nil
}

func decodeResponse(method, path string, resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newDirectoryRequestError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func newDirectoryRequestError(method, path string, resp *http.Response) *DirectoryRequestError {
	body, _ := io.ReadAll(resp.Body)
	reqErr := &DirectoryRequestError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
	}

	var payload graphErrorPayload
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		reqErr.Code = payload.Error.Code
		reqErr.Message = payload.Error.Message
	}
	return reqErr
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}

// firstUsers returns at most size users and never nil; servers that ignore
// $top still yield a bounded result.
func firstUsers(users []User, size int) []User {
	if users == nil {
		return []User{}
	}
	if len(users) > size {
		return users[:size]
	}
	return users
}
