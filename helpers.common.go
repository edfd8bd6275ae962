package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
)

type ContextKey string

const (
	RequestIDPrefix         string     = "r"
	EventIDPrefix           string     = "e"
	RequestIDContextKey     ContextKey = "request.id"
	RequestNumberContextKey ContextKey = "request.number"
	UserContextKey          ContextKey = "request.user"
)

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val, ok := ctx.Value(contextKey).(string); ok {
		return val
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val, ok := ctx.Value(RequestNumberContextKey).(uint64); ok {
		return val
	}
	return 0
}

// WithUser stores the authenticated user into the context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext returns the authenticated user saved by the auth middleware.
func GetUserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(UserContextKey).(User)
	return user, ok
}

// ExtractBearerToken returns the token part of an `Authorization: Bearer <token>`
// header value. The scheme is matched case-insensitively.
func ExtractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// ParseBookFilter builds a search filter from the `category` and `available` query parameters.
func ParseBookFilter(r *http.Request) (BookFilter, error) {
	var filter BookFilter
	q := r.URL.Query()
	if q.Has("category") {
		category := q.Get("category")
		filter.Category = &category
	}
	if q.Has("available") {
		available, ok := parseBoolParam(q.Get("available"))
		if !ok {
			return filter, invalidParameterError("available")
		}
		filter.Available = &available
	}
	return filter, nil
}

// boolParams lists the accepted spellings of a boolean query parameter.
var boolParams = map[string]bool{
	"true": true, "t": true, "1": true, "yes": true, "y": true, "on": true,
	"false": false, "f": false, "0": false, "no": false, "n": false, "off": false,
}

// parseBoolParam reads a boolean query value case-insensitively.
func parseBoolParam(value string) (bool, bool) {
	b, ok := boolParams[strings.ToLower(strings.TrimSpace(value))]
	return b, ok
}

type invalidParameterError string

func (e invalidParameterError) Error() string {
	return "query parameter " + string(e) + " is not valid"
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	if net.ParseIP(ip) != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	for _, ip := range strings.Split(r.Header.Get("X-FORWARDED-FOR"), ",") {
		ip = strings.TrimSpace(ip)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	// Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return ""
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
