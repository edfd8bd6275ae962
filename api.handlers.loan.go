package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Borrow lends one copy of a book to the authenticated user.
//
//	@Summary	Borrow a book
//	@Tags		loans
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		payload	body		BorrowRequest	true	"book and borrower ids"
//	@Success	201		{object}	APIResponse{data=LoanOut}
//	@Failure	400		{object}	APIError
//	@Failure	401		{object}	APIError
//	@Failure	403		{object}	APIError
//	@Failure	404		{object}	APIError
//	@Router		/loans/borrow [post]
func (api *APIHandler) Borrow(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req BorrowRequest
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, ErrInvalidToken.Error())
		return
	}

	if err := DecodeRequestBody(r, &req); err != nil {
		api.logger.Info("failed to decode borrow request", zap.String("request.id", requestID), zap.Error(err))
		api.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := ValidateRequestBody(&req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := api.service.Borrow(r.Context(), user, Loan{UserID: req.UserID, BookID: req.BookID})
	if err != nil {
		api.writeServiceError(w, r, err, "failed to borrow the book")
		return
	}

	api.logger.Info("success to borrow book",
		zap.String("request.id", requestID),
		zap.Int64("user.id", loan.UserID),
		zap.Int64("book.id", loan.BookID),
		zap.Int64("loan.id", loan.ID),
	)
	api.writeSuccess(w, r, http.StatusCreated, "Book borrowed successfully.", nil, NewLoanOut(loan))
}

// MyLoans lists the authenticated user loans.
//
//	@Summary	List my loans
//	@Tags		loans
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	APIResponse{data=[]LoanOut}
//	@Failure	401	{object}	APIError
//	@Router		/users/me/loans [get]
func (api *APIHandler) MyLoans(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, ErrInvalidToken.Error())
		return
	}

	loans, err := api.service.MyLoans(r.Context(), user.ID)
	if err != nil {
		api.writeServiceError(w, r, err, "failed to get user loans")
		return
	}

	total := len(loans)
	api.logger.Info("success to get user loans", zap.String("request.id", requestID), zap.Int64("user.id", user.ID), zap.Int("loans.count", total))
	api.writeSuccess(w, r, http.StatusOK, "Loans fetched successfully.", &total, NewLoansOut(loans))
}
