package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestAPIHandler returns an api handler on top of the given service with fixed clock and ids.
func newTestAPIHandler(ls LibraryServiceProvider, journal Journal) *APIHandler {
	clock := NewMockClocker()
	return NewAPIHandler(
		zap.NewNop(),
		&Config{OpsEndpointsEnable: true},
		&Statistics{started: clock.Now()},
		clock,
		NewMockUIDHandler("test", true),
		ls,
		journal,
	)
}

// readEnvelope checks the json content type then decodes the response body.
func readEnvelope(t *testing.T, res *http.Response) map[string]interface{} {
	t.Helper()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	m := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(data, &m), string(data))
	return m
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(payload)
}

// TestStatusHandler ensures api handler can provides its status.
func TestStatusHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	api := newTestAPIHandler(nil, nil)
	api.Status(w, req, httprouter.Params{})
	res := w.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	m := readEnvelope(t, res)

	_, ok := m["requestid"]
	assert.True(t, ok)
	assert.Equal(t, "up & running since 0 mins", m["status"])
	assert.Equal(t, "Hello. Library lending api is available. Enjoy :)", m["message"])
}

// TestCreateBookHandler ensures api handler can create a book.
//
//nolint:funlen
func TestCreateBookHandler(t *testing.T) {
	validBook := BookCreateRequest{
		Title:       "Python Programming",
		Author:      "John Smith",
		ISBN:        "978-0123456789",
		Category:    "Programming",
		TotalCopies: 5,
	}

	t.Run("should pass: valid payload", func(t *testing.T) {
		var received Book
		api := newTestAPIHandler(&MockLibraryService{
			CreateBookFunc: func(ctx context.Context, book Book) (Book, error) {
				received = book
				book.ID = 1
				book.AvailableCopies = book.TotalCopies
				return book, nil
			},
		}, nil)
		req := httptest.NewRequest(http.MethodPost, "/books", jsonBody(t, validBook))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res := w.Result()
		assert.Equal(t, http.StatusCreated, res.StatusCode)
		m := readEnvelope(t, res)

		assert.Equal(t, float64(http.StatusCreated), m["status"])
		assert.Equal(t, "Book created successfully.", m["message"])
		_, hasTotal := m["total"]
		assert.False(t, hasTotal)

		bookMap, ok := m["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(1), bookMap["id"])
		assert.Equal(t, "Python Programming", bookMap["title"])
		assert.Equal(t, "978-0123456789", bookMap["isbn"])
		assert.Equal(t, float64(5), bookMap["total_copies"])
		assert.Equal(t, float64(5), bookMap["available_copies"])
		assert.Equal(t, "Programming", received.Category)
	})

	t.Run("should fail: invalid payloads", func(t *testing.T) {
		api := newTestAPIHandler(&MockLibraryService{}, nil)
		noCopies := validBook
		noCopies.TotalCopies = 0
		shortISBN := validBook
		shortISBN.ISBN = "123"
		noTitle := validBook
		noTitle.Title = ""

		testCases := []struct {
			name    string
			body    io.Reader
			message string
		}{
			{"not json", bytes.NewBufferString("{title"), "invalid request body"},
			{"zero copies", jsonBody(t, noCopies), "total_copies must be at least 1"},
			{"short isbn", jsonBody(t, shortISBN), "isbn length must be at least 10"},
			{"missing title", jsonBody(t, noTitle), "title is required"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodPost, "/books", tc.body)
				w := httptest.NewRecorder()
				api.CreateBook(w, req, httprouter.Params{})
				res := w.Result()
				assert.Equal(t, http.StatusBadRequest, res.StatusCode)
				m := readEnvelope(t, res)
				assert.Equal(t, tc.message, m["message"])
			})
		}
	})

	t.Run("should fail: duplicate isbn", func(t *testing.T) {
		api := newTestAPIHandler(&MockLibraryService{
			CreateBookFunc: func(ctx context.Context, book Book) (Book, error) {
				return Book{}, ErrISBNTaken
			},
		}, nil)
		req := httptest.NewRequest(http.MethodPost, "/books", jsonBody(t, validBook))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res := w.Result()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		m := readEnvelope(t, res)
		assert.Equal(t, "isbn already exists", m["message"])
	})

	t.Run("should fail: storage insertion failure", func(t *testing.T) {
		api := newTestAPIHandler(&MockLibraryService{
			CreateBookFunc: func(ctx context.Context, book Book) (Book, error) {
				return Book{}, errors.New("storage failure")
			},
		}, nil)
		req := httptest.NewRequest(http.MethodPost, "/books", jsonBody(t, validBook))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res := w.Result()
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		m := readEnvelope(t, res)
		assert.Equal(t, "failed to create the book", m["message"])
	})
}

// TestSearchBooksHandler ensures query parameters become the service filter.
func TestSearchBooksHandler(t *testing.T) {
	var received BookFilter
	api := newTestAPIHandler(&MockLibraryService{
		SearchBooksFunc: func(ctx context.Context, filter BookFilter) ([]Book, error) {
			received = filter
			return []Book{{ID: 1, Title: "Python Programming", Category: "Programming", TotalCopies: 5, AvailableCopies: 5}}, nil
		},
	}, nil)

	t.Run("should pass: both filters", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books?category=Programming&available=true", nil)
		w := httptest.NewRecorder()
		api.SearchBooks(w, req, httprouter.Params{})
		res := w.Result()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		m := readEnvelope(t, res)
		assert.Equal(t, "Books fetched successfully.", m["message"])
		assert.Equal(t, float64(1), m["total"])
		books, ok := m["data"].([]interface{})
		require.True(t, ok)
		assert.Len(t, books, 1)

		require.NotNil(t, received.Category)
		assert.Equal(t, "Programming", *received.Category)
		require.NotNil(t, received.Available)
		assert.True(t, *received.Available)
	})

	t.Run("should pass: no filter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books", nil)
		w := httptest.NewRecorder()
		api.SearchBooks(w, req, httprouter.Params{})
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Nil(t, received.Category)
		assert.Nil(t, received.Available)
	})

	t.Run("should fail: invalid availability", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books?available=maybe", nil)
		w := httptest.NewRecorder()
		api.SearchBooks(w, req, httprouter.Params{})
		res := w.Result()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		m := readEnvelope(t, res)
		assert.Equal(t, "query parameter available is not valid", m["message"])
	})
}

// TestSearchBooksHandlerEmpty ensures an empty search answers an empty list.
func TestSearchBooksHandlerEmpty(t *testing.T) {
	api := newTestAPIHandler(&MockLibraryService{
		SearchBooksFunc: func(ctx context.Context, filter BookFilter) ([]Book, error) {
			return []Book{}, nil
		},
	}, nil)
	req := httptest.NewRequest(http.MethodGet, "/books?category=Cooking", nil)
	w := httptest.NewRecorder()
	api.SearchBooks(w, req, httprouter.Params{})
	m := readEnvelope(t, w.Result())
	assert.Equal(t, float64(0), m["total"])
	assert.Equal(t, []interface{}{}, m["data"])
}
