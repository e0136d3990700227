package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wesleyorama2/hive/internal/swarm"
)

// buildRequest constructs an http.Request from a swarm request, resolving
// its path against baseURL. Query parameters already in the path are kept
// and Params are added to them.
func buildRequest(baseURL string, r *swarm.Request) (*http.Request, error) {
	reqURL, err := resolveURL(baseURL, r.Path)
	if err != nil {
		return nil, err
	}

	if len(r.Params) > 0 {
		query := reqURL.Query()
		for key, values := range r.Params {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		reqURL.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if len(r.Body) > 0 {
		bodyReader = bytes.NewReader(r.Body)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, reqURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if len(r.Body) > 0 && req.Header.Get("Content-Type") == "" && json.Valid(r.Body) {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// resolveURL joins path onto baseURL. An absolute path URL is used as is.
func resolveURL(baseURL, path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() || baseURL == "" {
		return ref, nil
	}

	reqURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	if reqURL.Path == "" {
		reqURL.Path = "/" + strings.TrimLeft(ref.Path, "/")
	} else {
		reqURL.Path = strings.TrimRight(reqURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	}
	reqURL.RawQuery = ref.RawQuery
	return reqURL, nil
}
