package sdk_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

// countingTokens hands out a distinct token per call so tests can assert that
// tokens are never reused across requests.
type countingTokens struct {
	calls atomic.Int32
	err   error
}

func (c *countingTokens) Token(context.Context) (*oauth2.Token, error) {
	n := c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &oauth2.Token{AccessToken: fmt.Sprintf("token-%d", n), TokenType: "Bearer"}, nil
}

// recordedRequest captures what the fake directory API received.
type recordedRequest struct {
	Method        string
	Path          string
	RawPath       string
	Query         map[string][]string
	Authorization string
	ContentType   string
	RequestID     string
	Body          []byte
}

type fakeDirectory struct {
	mu       sync.Mutex
	requests []recordedRequest
}

// record is called for every request, before routing.
func (f *fakeDirectory) record(r *http.Request, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawPath:       r.URL.EscapedPath(),
		Query:         r.URL.Query(),
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		RequestID:     r.Header.Get("client-request-id"),
		Body:          body,
	})
}

func (f *fakeDirectory) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

// newFakeDirectory mounts handlers under /v1.0 and returns the API base URL.
func newFakeDirectory(t *testing.T, mount func(r chi.Router, f *fakeDirectory)) (*fakeDirectory, string) {
	t.Helper()
	fake := &fakeDirectory{}
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
			fake.record(r, body)
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/v1.0", func(r chi.Router) {
		mount(r, fake)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return fake, srv.URL + "/v1.0"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func graphError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
