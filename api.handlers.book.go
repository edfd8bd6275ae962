package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Index provides same details like `Status` handler by redirecting the request.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(
		StatusResponse{
			RequestID: requestID,
			Status:    fmt.Sprintf("up & running since %.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
			Message:   "Hello. Library lending api is available. Enjoy :)",
		},
	); err != nil {
		api.logger.Error("failed to send status response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// CreateBook adds a new book to the catalog with all its copies available.
//
//	@Summary	Create a book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		payload	body		BookCreateRequest	true	"book details"
//	@Success	201		{object}	APIResponse{data=Book}
//	@Failure	400		{object}	APIError
//	@Failure	401		{object}	APIError
//	@Failure	403		{object}	APIError
//	@Router		/books [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req BookCreateRequest
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if err := DecodeRequestBody(r, &req); err != nil {
		api.logger.Info("failed to decode book request", zap.String("request.id", requestID), zap.Error(err))
		api.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := ValidateRequestBody(&req); err != nil {
		api.logger.Info("invalid book request", zap.String("request.id", requestID), zap.Error(err))
		api.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	book, err := api.service.CreateBook(r.Context(), Book{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Category:    req.Category,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "failed to create the book")
		return
	}

	api.logger.Info("success to create book", zap.String("request.id", requestID), zap.Int64("book.id", book.ID))
	api.writeSuccess(w, r, http.StatusCreated, "Book created successfully.", nil, book)
}

// SearchBooks lists the catalog filtered by category and availability.
//
//	@Summary	Search books
//	@Tags		books
//	@Produce	json
//	@Param		category	query		string	false	"exact category"
//	@Param		available	query		bool	false	"true keeps books with copies left, false keeps exhausted books"
//	@Success	200			{object}	APIResponse{data=[]Book}
//	@Failure	400			{object}	APIError
//	@Router		/books [get]
func (api *APIHandler) SearchBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	filter, err := ParseBookFilter(r)
	if err != nil {
		api.logger.Info("invalid books search", zap.String("request.id", requestID), zap.Error(err))
		api.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	books, err := api.service.SearchBooks(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err, "failed to search books")
		return
	}

	api.logger.Info("success to search books", zap.String("request.id", requestID), zap.Int("books.count", len(books)))
	total := len(books)
	api.writeSuccess(w, r, http.StatusOK, "Books fetched successfully.", &total, books)
}
