package domain

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestURL is the request view tracking handlers work with.
type RequestURL struct {
	Method string
	// Path has leading and trailing slashes stripped.
	Path  string
	Query url.Values
}

func NewRequestURL(r *http.Request) *RequestURL {
	method := http.MethodGet
	if r.Method != "" {
		method = r.Method
	}
	var query url.Values
	if r.URL != nil {
		query = r.URL.Query()
	}
	path := ""
	if r.URL != nil {
		path = r.URL.Path
	}
	return &RequestURL{
		Method: method,
		Path:   NormalizePath(path),
		Query:  query,
	}
}

// NormalizePath strips leading and trailing slashes.
func NormalizePath(path string) string {
	return strings.Trim(path, "/")
}

func (u *RequestURL) String() string {
	return u.Method + " :: " + u.Path
}

// Part returns the i-th slash-separated path segment. Negative indexes count
// from the end. Out of range yields "".
func (u *RequestURL) Part(i int) string {
	parts := strings.Split(u.Path, "/")
	if i < 0 {
		i += len(parts)
	}
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// QueryParam returns the first value for key, or "" when absent or empty.
func (u *RequestURL) QueryParam(key string) string {
	if u.Query == nil {
		return ""
	}
	return u.Query.Get(key)
}

// APIAction resolves version and action name from api/action/{name} and
// api/{version}/action/{name}. The unversioned form implies version "3".
func (u *RequestURL) APIAction() (string, string, error) {
	parts := strings.Split(u.Path, "/")
	if parts[0] != "api" {
		return "", "", ErrInvalidAPIAction
	}
	switch len(parts) {
	case 3:
		if parts[1] != "action" || parts[2] == "" {
			return "", "", ErrInvalidAPIAction
		}
		return "3", parts[2], nil
	case 4:
		if !isDigits(parts[1]) || parts[2] != "action" || parts[3] == "" {
			return "", "", ErrInvalidAPIAction
		}
		return parts[1], parts[3], nil
	default:
		return "", "", ErrInvalidAPIAction
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
