package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// newTestRouter wires the full api on top of the memory storage with the real middlewares stacks.
func newTestRouter(config *Config) (*APIHandler, *httprouter.Router) {
	return newTestRouterWithHasher(config, &sha256Hasher{})
}

func newTestRouterWithHasher(config *Config, hasher PasswordHasher) (*APIHandler, *httprouter.Router) {
	clock := NewMockClocker()
	ids := NewMockUIDHandler("test", true)
	ls := NewLibraryService(zap.NewNop(), config, clock, ids, hasher, NewRandomTokenGenerator(32), NewMemoryLibraryStorage(), nil)
	api := NewAPIHandler(zap.NewNop(), config, &Statistics{started: clock.Now()}, clock, ids, ls, nil)
	public, ops := api.MiddlewaresStacks()
	router := api.SetupRoutes(httprouter.New(), &MiddlewareMap{public: public.Chain, ops: ops.Chain})
	return api, router
}

// TestSetupLibraryRoutes ensures all expected library endpoints are implemented.
func TestSetupLibraryRoutes(t *testing.T) {
	testCases := []struct {
		name        string
		request     *http.Request
		implemented bool
	}{
		{"index endpoint", httptest.NewRequest(http.MethodGet, "/", nil), true},
		{"status endpoint", httptest.NewRequest(http.MethodGet, "/status", nil), true},
		{"signup endpoint", httptest.NewRequest(http.MethodPost, "/auth/signup", nil), true},
		{"login endpoint", httptest.NewRequest(http.MethodPost, "/auth/login", nil), true},
		{"create book endpoint", httptest.NewRequest(http.MethodPost, "/books", nil), true},
		{"search books endpoint", httptest.NewRequest(http.MethodGet, "/books?category=Programming", nil), true},
		{"borrow endpoint", httptest.NewRequest(http.MethodPost, "/loans/borrow", nil), true},
		{"my profile endpoint", httptest.NewRequest(http.MethodGet, "/users/me", nil), true},
		{"my loans endpoint", httptest.NewRequest(http.MethodGet, "/users/me/loans", nil), true},
		{"swagger endpoint", httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil), true},
		{"no return endpoint", httptest.NewRequest(http.MethodPost, "/loans/return", nil), false},
		{"no single book endpoint", httptest.NewRequest(http.MethodGet, "/books/1", nil), false},
		{"no versioned endpoint", httptest.NewRequest(http.MethodGet, "/v1/books", nil), false},
	}

	_, router := newTestRouter(&Config{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tc.request)
			if tc.implemented {
				assert.NotEqual(t, 404, w.Code)
			} else {
				assert.Equal(t, 404, w.Code)
			}
		})
	}
}

// TestSetupRoutes ensures ops endpoints are only exposed when enabled.
func TestSetupRoutes(t *testing.T) {
	testCases := []struct {
		name        string
		config      *Config
		request     *http.Request
		implemented bool
	}{
		{"ops disable:fetch configs endpoint", &Config{}, httptest.NewRequest(http.MethodGet, "/ops/configs", nil), false},
		{"ops enable:fetch configs endpoint", &Config{OpsEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/configs", nil), true},
		{"ops enable:stats endpoint", &Config{OpsEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/stats", nil), true},
		{"ops enable:events endpoint", &Config{OpsEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/events", nil), true},
		{"ops enable:expvar endpoint", &Config{OpsEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/debug/vars", nil), true},
		{"ops enable:disabled profiler endpoint", &Config{OpsEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/", nil), false},
		{"profiler enable:profiler endpoint", &Config{OpsEndpointsEnable: true, ProfilerEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/heap", nil), true},
		{"profiler enable:index endpoint", &Config{OpsEndpointsEnable: true, ProfilerEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/", nil), true},
		{"profiler enable:cmdline endpoint", &Config{OpsEndpointsEnable: true, ProfilerEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/cmdline", nil), true},
		{"profiler enable:goroutine endpoint", &Config{OpsEndpointsEnable: true, ProfilerEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/goroutine", nil), true},
		{"profiler enable:unknown profile", &Config{OpsEndpointsEnable: true, ProfilerEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/unknown", nil), false},
		{"unknown ops endpoint", &Config{OpsEndpointsEnable: true}, httptest.NewRequest(http.MethodGet, "/ops/unknown", nil), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, router := newTestRouter(tc.config)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tc.request)
			if tc.implemented {
				assert.NotEqual(t, 404, w.Code)
			} else {
				assert.Equal(t, 404, w.Code)
			}
		})
	}
}

// TestSetupRoutes_NotFound ensures exact status code and json response body when a user requests an inexistant route.
func TestSetupRoutes_NotFound(t *testing.T) {
	_, router := newTestRouter(&Config{})
	r := httptest.NewRequest(http.MethodGet, "/x/books/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	res := w.Result()
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	expected := `{"requestid":"r:test", "message":"route does not exist", "path":"/x/books/"}`
	assert.JSONEq(t, expected, string(data))
}

// call sends a request through the router and decodes the envelope.
func call(t *testing.T, router http.Handler, method, path, token, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code, readEnvelope(t, w.Result())
}

func login(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()
	code, m := call(t, router, http.MethodPost, "/auth/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, code, m)
	return m["data"].(map[string]interface{})["access_token"].(string)
}

// TestLendingFlow replays the signup, login, create, search, borrow and loans sequence.
//
//nolint:funlen
func TestLendingFlow(t *testing.T) {
	_, router := newTestRouter(&Config{})

	code, m := call(t, router, http.MethodPost, "/auth/signup", "",
		`{"username":"john_doe","email":"john@example.com","password":"securepass123","full_name":"John Doe"}`)
	require.Equal(t, http.StatusCreated, code, m)
	assert.Equal(t, "r:test", m["requestid"])
	assert.Equal(t, "admin", m["data"].(map[string]interface{})["role"])

	code, m = call(t, router, http.MethodPost, "/auth/signup", "",
		`{"username":"jane","email":"jane@example.com","password":"janepass","full_name":"Jane Roe"}`)
	require.Equal(t, http.StatusCreated, code, m)
	assert.Equal(t, "user", m["data"].(map[string]interface{})["role"])

	adminToken := login(t, router, "john_doe", "securepass123")
	userToken := login(t, router, "jane", "janepass")
	assert.NotEqual(t, adminToken, userToken)

	book := `{"title":"Python Programming","author":"John Smith","isbn":"978-0123456789","category":"Programming","total_copies":1}`

	t.Run("create book requires a token", func(t *testing.T) {
		code, m := call(t, router, http.MethodPost, "/books", "", book)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid authorization header", m["message"])

		code, _ = call(t, router, http.MethodPost, "/books", "forged", book)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("create book requires the admin", func(t *testing.T) {
		code, m := call(t, router, http.MethodPost, "/books", userToken, book)
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "admin privileges required", m["message"])
	})

	code, m = call(t, router, http.MethodPost, "/books", adminToken, book)
	require.Equal(t, http.StatusCreated, code, m)
	assert.Equal(t, float64(1), m["data"].(map[string]interface{})["available_copies"])

	code, m = call(t, router, http.MethodGet, "/books?category=Programming&available=true", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), m["total"])

	code, m = call(t, router, http.MethodGet, "/books?available=yes", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), m["total"])
	code, m = call(t, router, http.MethodGet, "/books?available=off", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), m["total"])

	t.Run("borrow for another user is rejected", func(t *testing.T) {
		code, _ := call(t, router, http.MethodPost, "/loans/borrow", adminToken, `{"book_id":1,"user_id":2}`)
		assert.Equal(t, http.StatusForbidden, code)
	})

	code, m = call(t, router, http.MethodPost, "/loans/borrow", userToken, `{"book_id":1,"user_id":2}`)
	require.Equal(t, http.StatusCreated, code, m)
	assert.Equal(t, "2023-07-02T00:00:00Z", m["data"].(map[string]interface{})["borrowed_at"])

	code, m = call(t, router, http.MethodPost, "/loans/borrow", adminToken, `{"book_id":1,"user_id":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "no available copies", m["message"])

	code, m = call(t, router, http.MethodGet, "/books?available=true", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), m["total"])

	code, m = call(t, router, http.MethodGet, "/users/me/loans", userToken, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), m["total"])

	code, m = call(t, router, http.MethodGet, "/users/me/loans", adminToken, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), m["total"])
	assert.Equal(t, []interface{}{}, m["data"])

	code, m = call(t, router, http.MethodGet, "/users/me", userToken, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "jane", m["data"].(map[string]interface{})["username"])
}

// TestConcurrentBorrowLastCopy ensures two simultaneous borrows of the last copy
// end with exactly one loan.
func TestConcurrentBorrowLastCopy(t *testing.T) {
	_, router := newTestRouter(&Config{})
	code, _ := call(t, router, http.MethodPost, "/auth/signup", "",
		`{"username":"john_doe","email":"john@example.com","password":"securepass123","full_name":"John Doe"}`)
	require.Equal(t, http.StatusCreated, code)
	token := login(t, router, "john_doe", "securepass123")
	code, _ = call(t, router, http.MethodPost, "/books", token,
		`{"title":"Go","author":"Rob Pike","isbn":"978-0000000001","category":"Programming","total_copies":1}`)
	require.Equal(t, http.StatusCreated, code)

	const callers = 8
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/loans/borrow", strings.NewReader(`{"book_id":1,"user_id":1}`))
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusBadRequest, c)
		}
	}
	assert.Equal(t, 1, created)
}

// TestLongPasswordWithBcrypt ensures the longest accepted password signs up
// and logs in when bcrypt hashes the passwords.
func TestLongPasswordWithBcrypt(t *testing.T) {
	hasher, err := NewPasswordHasher(AuthConfig{PasswordHasher: BcryptHasher, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	_, router := newTestRouterWithHasher(&Config{}, hasher)

	for _, size := range []int{100, 128} {
		username := fmt.Sprintf("user_%d", size)
		password := strings.Repeat("p", size)
		code, m := call(t, router, http.MethodPost, "/auth/signup", "",
			`{"username":"`+username+`","email":"`+username+`@example.com","password":"`+password+`","full_name":"Long Password"}`)
		require.Equal(t, http.StatusCreated, code, m)
		assert.NotEmpty(t, login(t, router, username, password))

		code, m = call(t, router, http.MethodPost, "/auth/login", "", `{"username":"`+username+`","password":"`+password[:size-1]+`"}`)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid credentials", m["message"])
	}
}

// TestLoginEmptyCredentials ensures empty credentials are answered like wrong ones.
func TestLoginEmptyCredentials(t *testing.T) {
	_, router := newTestRouter(&Config{})
	code, m := call(t, router, http.MethodPost, "/auth/login", "", `{"username":"","password":""}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid credentials", m["message"])
}
