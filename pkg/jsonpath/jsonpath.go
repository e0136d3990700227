// Package jsonpath evaluates simple JSONPath expressions against response
// bodies. Paths like $.movies[0].title are translated to gjson syntax.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup returns the value at path in body.
func Lookup(body []byte, path string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, fmt.Errorf("empty body")
	}
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("body is not valid JSON")
	}

	result := gjson.GetBytes(body, toGjsonPath(path))
	if !result.Exists() {
		return result, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// Extract returns the value at path as a string. JSON null becomes "null".
func Extract(body []byte, path string) (string, error) {
	result, err := Lookup(body, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// Exists reports whether path resolves to a value in body.
func Exists(body []byte, path string) bool {
	_, err := Lookup(body, path)
	return err == nil
}

// Equals checks that the value at path matches want. Numbers are compared
// numerically, so "1" matches 1.0.
func Equals(body []byte, path, want string) error {
	result, err := Lookup(body, path)
	if err != nil {
		return err
	}

	switch result.Type {
	case gjson.Number:
		w, perr := strconv.ParseFloat(want, 64)
		if perr == nil && w == result.Num {
			return nil
		}
	case gjson.Null:
		if want == "null" {
			return nil
		}
	default:
		if result.String() == want {
			return nil
		}
	}
	return fmt.Errorf("%s is %q, expected %q", path, result.String(), want)
}

// Count returns the length of the array at path, or 1 for scalars.
func Count(body []byte, path string) (int, error) {
	result, err := Lookup(body, path)
	if err != nil {
		return 0, err
	}
	if result.IsArray() {
		return len(result.Array()), nil
	}
	return 1, nil
}

// toGjsonPath converts $.a.b[0]['c'] into a.b.0.c.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	r := strings.NewReplacer(
		"['", ".", "']", "",
		`["`, ".", `"]`, "",
		"[", ".", "]", "",
	)
	path = r.Replace(path)
	return strings.TrimPrefix(path, ".")
}
