package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm"
)

func TestClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected method GET, got %s", r.Method)
		}
		if r.URL.Path != "/v1/movies" {
			t.Errorf("Expected path /v1/movies, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("genres") != "adventure" || r.URL.Query().Get("page_size") != "2" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Test-Header") != "test-value" {
			t.Errorf("Expected header X-Test-Header: test-value, got %s", r.Header.Get("X-Test-Header"))
		}
		if r.Header.Get("User-Agent") != "hive-test" {
			t.Errorf("Expected User-Agent hive-test, got %s", r.Header.Get("User-Agent"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"movies":[],"metadata":{}}`))
	}))
	defer server.Close()

	client := NewClient(
		WithTimeout(5*time.Second),
		WithHeader("User-Agent", "hive-test"),
		WithBaseURL(server.URL),
	)

	res := client.Do(context.Background(), &swarm.Request{
		Method:  "GET",
		Path:    "/v1/movies?genres=adventure",
		Params:  url.Values{"page": {"1"}, "page_size": {"2"}},
		Headers: map[string]string{"X-Test-Header": "test-value"},
	})
	if res.Err != nil {
		t.Fatalf("Error executing request: %v", res.Err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, res.StatusCode)
	}
	if string(res.Body) != `{"movies":[],"metadata":{}}` {
		t.Errorf("Unexpected body %s", res.Body)
	}
	if res.Bytes != int64(len(res.Body)) {
		t.Errorf("Bytes = %d, want %d", res.Bytes, len(res.Body))
	}
	if res.Latency <= 0 {
		t.Error("Latency not measured")
	}
	if http.Header(res.Headers).Get("Content-Type") != "application/json" {
		t.Errorf("Unexpected headers %v", res.Headers)
	}
}

func TestClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type: application/json, got %s", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	res := client.Do(context.Background(), &swarm.Request{
		Method: "POST",
		Path:   "/v1/movies",
		Body:   []byte(`{"title":"Moana","year":2016}`),
	})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", res.StatusCode)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(WithBaseURL(server.URL))
	start := time.Now()
	res := client.Do(context.Background(), &swarm.Request{Path: "/slow", Timeout: 50 * time.Millisecond})

	if res.Err == nil {
		t.Fatal("Expected timeout error")
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want DeadlineExceeded", res.Err)
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", res.StatusCode)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	client := NewClient(WithBaseURL(addr), WithTimeout(time.Second))
	res := client.Do(context.Background(), &swarm.Request{Path: "/"})
	if res.Err == nil {
		t.Error("Expected connection error")
	}
}

func TestClient_LargeBodyIsCountedButCapped(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 100
	client := NewClient(WithBaseURL(server.URL), WithConfig(cfg))

	res := client.Do(context.Background(), &swarm.Request{Path: "/"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if len(res.Body) != 100 {
		t.Errorf("kept %d bytes, want 100", len(res.Body))
	}
	if res.Bytes != 4096 {
		t.Errorf("Bytes = %d, want 4096", res.Bytes)
	}
}

func TestClient_NoRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	follow := NewClient(WithBaseURL(server.URL))
	if res := follow.Do(context.Background(), &swarm.Request{Path: "/old"}); res.StatusCode != http.StatusOK {
		t.Errorf("following client StatusCode = %d, want 200", res.StatusCode)
	}

	cfg := DefaultConfig()
	cfg.FollowRedirects = false
	noFollow := NewClient(WithBaseURL(server.URL), WithConfig(cfg))
	if res := noFollow.Do(context.Background(), &swarm.Request{Path: "/old"}); res.StatusCode != http.StatusMovedPermanently {
		t.Errorf("non-following client StatusCode = %d, want 301", res.StatusCode)
	}
}

func TestClient_WithOptions(t *testing.T) {
	timeout := 10 * time.Second
	baseURL := "https://example.com"

	client := NewClient(
		WithTimeout(timeout),
		WithBaseURL(baseURL),
		WithHeader("X-Test", "test-value"),
	)

	if client.config.Timeout != timeout {
		t.Errorf("Expected timeout %v, got %v", timeout, client.config.Timeout)
	}
	if client.BaseURL() != baseURL {
		t.Errorf("Expected baseURL %s, got %s", baseURL, client.BaseURL())
	}
	if client.headers["X-Test"] != "test-value" {
		t.Errorf("Expected header X-Test: test-value, got %s", client.headers["X-Test"])
	}
}

func TestClient_ImplementsRequester(t *testing.T) {
	var _ swarm.Requester = NewClient()
}
