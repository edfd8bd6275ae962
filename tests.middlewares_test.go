package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMiddlewaresStacks ensures we get both public and ops middlewares
// stacks with exact number of elements in those stacks.
func TestMiddlewaresStacks(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	pub, ops := api.MiddlewaresStacks()
	assert.Equal(t, 7, len(*pub))
	assert.Equal(t, 6, len(*ops))
}

// TestChain ensures each middleware in the stack is called as well the handler.
func TestChain(t *testing.T) {
	var ca, cb, cc, ch bool
	queue := make(chan int, 4)

	middlewareA := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 1
			ca = true
			next(w, r, ps)
		}
	}
	middlewareB := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 2
			cb = true
			next(w, r, ps)
		}
	}
	middlewareC := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 3
			cc = true
			next(w, r, ps)
		}
	}
	middlewares := Middlewares{
		middlewareA,
		middlewareB,
		middlewareC,
	}

	handler := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		queue <- 4
		ch = true
	}

	chained := (&middlewares).Chain(handler)
	req := httptest.NewRequest("GET", "/books", nil)
	w := httptest.NewRecorder()
	chained(w, req, nil)

	t.Run("check calling", func(t *testing.T) {
		assert.Equal(t, true, ca)
		assert.Equal(t, true, cb)
		assert.Equal(t, true, cc)
		assert.Equal(t, true, ch)
	})

	t.Run("check ordering", func(t *testing.T) {
		assert.Equal(t, 1, <-queue)
		assert.Equal(t, 2, <-queue)
		assert.Equal(t, 3, <-queue)
		assert.Equal(t, 4, <-queue)
	})
}

// TestRequestsCounterMiddleware ensures the request counter increment.
func TestRequestsCounterMiddleware(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	req := httptest.NewRequest("GET", "/books", nil)
	w := httptest.NewRecorder()
	var num uint64
	handler := func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		num = GetRequestNumberFromContext(req.Context())
	}
	wrapped := api.RequestsCounterMiddleware(handler)
	wrapped(w, req, nil)
	assert.Equal(t, uint64(1), num)
	assert.Equal(t, uint64(1), api.stats.called)
}

// TestRequestIDMiddleware ensures the request id is in the context and the response headers.
func TestRequestIDMiddleware(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	var id string
	wrapped := api.RequestIDMiddleware(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id = GetValueFromContext(r.Context(), RequestIDContextKey)
	})
	w := httptest.NewRecorder()
	wrapped(w, httptest.NewRequest("GET", "/books", nil), nil)
	assert.Equal(t, "r:test", id)
	assert.Equal(t, "r:test", w.Header().Get("X-Request-ID"))
}

// TestPanicRecoveryMiddleware ensures a panicking handler answers 500.
func TestPanicRecoveryMiddleware(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	wrapped := api.PanicRecoveryMiddleware(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		panic("boom")
	})
	w := httptest.NewRecorder()
	assert.NotPanics(t, func() { wrapped(w, httptest.NewRequest("GET", "/books", nil), nil) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	m := readEnvelope(t, w.Result())
	assert.Equal(t, "failed to process the request.", m["message"])
}

// TestAuthMiddlewares ensures the bearer token resolves the caller and only
// the admin passes the admin guard.
//
//nolint:funlen
func TestAuthMiddlewares(t *testing.T) {
	users := map[string]User{
		"admin-token": {ID: 1, Username: "john_doe", Role: RoleAdmin},
		"user-token":  {ID: 2, Username: "jane", Role: RoleUser},
	}
	api := newTestAPIHandler(&MockLibraryService{
		AuthenticateFunc: func(ctx context.Context, token string) (User, error) {
			user, ok := users[token]
			if !ok {
				return User{}, ErrInvalidToken
			}
			return user, nil
		},
	}, nil)

	var seen User
	next := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		seen, _ = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	testCases := []struct {
		name    string
		handle  httprouter.Handle
		header  string
		status  int
		message string
		user    string
	}{
		{"authenticated: missing header", api.Authenticated(next), "", http.StatusUnauthorized, "invalid authorization header", ""},
		{"authenticated: wrong scheme", api.Authenticated(next), "Basic user-token", http.StatusUnauthorized, "invalid authorization header", ""},
		{"authenticated: empty token", api.Authenticated(next), "Bearer ", http.StatusUnauthorized, "invalid authorization header", ""},
		{"authenticated: unknown token", api.Authenticated(next), "Bearer forged", http.StatusUnauthorized, "invalid or expired token", ""},
		{"authenticated: valid token", api.Authenticated(next), "Bearer user-token", http.StatusOK, "", "jane"},
		{"authenticated: lower case scheme", api.Authenticated(next), "bearer user-token", http.StatusOK, "", "jane"},
		{"admin: regular user", api.AdminOnly(next), "Bearer user-token", http.StatusForbidden, "admin privileges required", ""},
		{"admin: unknown token", api.AdminOnly(next), "Bearer forged", http.StatusUnauthorized, "invalid or expired token", ""},
		{"admin: admin user", api.AdminOnly(next), "Bearer admin-token", http.StatusOK, "", "john_doe"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seen = User{}
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			tc.handle(w, req, nil)
			require.Equal(t, tc.status, w.Code)
			if tc.status != http.StatusOK {
				m := readEnvelope(t, w.Result())
				assert.Equal(t, tc.message, m["message"])
				return
			}
			assert.Equal(t, tc.user, seen.Username)
		})
	}
}

// TestCORSMiddleware ensures cors headers are set on every response.
func TestCORSMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	CORSMiddleware(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {})(w, httptest.NewRequest("GET", "/books", nil), nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
