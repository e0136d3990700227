package http

import (
	"io"
	"net/http"
)

// DefaultMaxBodyBytes caps how much of a response body is kept for checks.
const DefaultMaxBodyBytes = 1 << 20

// readBody keeps up to limit bytes of the body and discards the rest, so
// the connection can be reused. It returns the total number of bytes read.
func readBody(resp *http.Response, limit int64) ([]byte, int64, error) {
	defer resp.Body.Close()

	var body []byte
	var kept int64
	if limit > 0 {
		b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return b, int64(len(b)), err
		}
		body = b
		kept = int64(len(b))
	}

	rest, err := io.Copy(io.Discard, resp.Body)
	return body, kept + rest, err
}
