package http

import (
	"net/url"
	"testing"

	"github.com/wesleyorama2/hive/internal/swarm"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name           string
		baseURL        string
		req            swarm.Request
		expectedURL    string
		expectedMethod string
		contentType    string
	}{
		{
			name:           "Simple GET request",
			baseURL:        "https://api.example.com",
			req:            swarm.Request{Method: "GET", Path: "/v1/healthcheck"},
			expectedURL:    "https://api.example.com/v1/healthcheck",
			expectedMethod: "GET",
		},
		{
			name:           "Default method",
			baseURL:        "https://api.example.com",
			req:            swarm.Request{Path: "/v1/healthcheck"},
			expectedURL:    "https://api.example.com/v1/healthcheck",
			expectedMethod: "GET",
		},
		{
			name:           "Query parameters",
			baseURL:        "https://api.example.com",
			req:            swarm.Request{Method: "GET", Path: "/v1/movies", Params: url.Values{"page": {"1"}, "limit": {"10"}}},
			expectedURL:    "https://api.example.com/v1/movies?limit=10&page=1",
			expectedMethod: "GET",
		},
		{
			name:           "Query in path is kept",
			baseURL:        "https://api.example.com",
			req:            swarm.Request{Method: "GET", Path: "/v1/movies?genres=adventure&page=1&page_size=2"},
			expectedURL:    "https://api.example.com/v1/movies?genres=adventure&page=1&page_size=2",
			expectedMethod: "GET",
		},
		{
			name:           "Trailing slash in base URL",
			baseURL:        "https://api.example.com/",
			req:            swarm.Request{Method: "GET", Path: "/users"},
			expectedURL:    "https://api.example.com/users",
			expectedMethod: "GET",
		},
		{
			name:           "Base URL with path prefix",
			baseURL:        "https://api.example.com/api",
			req:            swarm.Request{Method: "GET", Path: "users"},
			expectedURL:    "https://api.example.com/api/users",
			expectedMethod: "GET",
		},
		{
			name:           "Absolute path overrides base URL",
			baseURL:        "https://api.example.com",
			req:            swarm.Request{Method: "GET", Path: "http://other.example.com/ping"},
			expectedURL:    "http://other.example.com/ping",
			expectedMethod: "GET",
		},
		{
			name:           "JSON body sets content type",
			baseURL:        "https://api.example.com",
			req:            swarm.Request{Method: "POST", Path: "/v1/movies", Body: []byte(`{"title":"Moana"}`)},
			expectedURL:    "https://api.example.com/v1/movies",
			expectedMethod: "POST",
			contentType:    "application/json",
		},
		{
			name:    "Explicit content type wins",
			baseURL: "https://api.example.com",
			req: swarm.Request{
				Method:  "POST",
				Path:    "/form",
				Body:    []byte(`{"a":1}`),
				Headers: map[string]string{"Content-Type": "text/plain"},
			},
			expectedURL:    "https://api.example.com/form",
			expectedMethod: "POST",
			contentType:    "text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpReq, err := buildRequest(tt.baseURL, &tt.req)
			if err != nil {
				t.Fatalf("Error building request: %v", err)
			}

			if httpReq.Method != tt.expectedMethod {
				t.Errorf("Expected method %s, got %s", tt.expectedMethod, httpReq.Method)
			}
			if httpReq.URL.String() != tt.expectedURL {
				t.Errorf("Expected URL %s, got %s", tt.expectedURL, httpReq.URL.String())
			}
			if got := httpReq.Header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Expected Content-Type %q, got %q", tt.contentType, got)
			}
			if len(tt.req.Body) > 0 && httpReq.Body == nil {
				t.Error("Expected body, got nil")
			}
		})
	}
}

func TestBuildRequest_InvalidURL(t *testing.T) {
	if _, err := buildRequest("://bad", &swarm.Request{Path: "/x"}); err == nil {
		t.Error("Expected error for invalid base URL")
	}
}
