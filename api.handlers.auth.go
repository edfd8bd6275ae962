package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Signup registers a new user. The very first user becomes the admin.
//
//	@Summary	Register a new user
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		SignupRequest	true	"user details"
//	@Success	201		{object}	APIResponse{data=UserOut}
//	@Failure	400		{object}	APIError
//	@Router		/auth/signup [post]
func (api *APIHandler) Signup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req SignupRequest
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if err := DecodeRequestBody(r, &req); err != nil {
		api.logger.Info("failed to decode signup request", zap.String("request.id", requestID), zap.Error(err))
		api.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := ValidateRequestBody(&req); err != nil {
		api.logger.Info("invalid signup request", zap.String("request.id", requestID), zap.Error(err))
		api.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := api.service.Signup(r.Context(), User{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
	}, req.Password)
	if err != nil {
		api.writeServiceError(w, r, err, "failed to create the user")
		return
	}

	api.logger.Info("success to create user", zap.String("request.id", requestID), zap.Int64("user.id", user.ID), zap.String("user.role", string(user.Role)))
	api.writeSuccess(w, r, http.StatusCreated, "User created successfully.", nil, NewUserOut(user))
}

// Login exchanges valid credentials against a new bearer token.
//
//	@Summary	Get an access token
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		LoginRequest	true	"credentials"
//	@Success	200		{object}	APIResponse{data=TokenResponse}
//	@Failure	401		{object}	APIError
//	@Router		/auth/login [post]
func (api *APIHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req LoginRequest
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if err := DecodeRequestBody(r, &req); err != nil {
		api.logger.Info("failed to decode login request", zap.String("request.id", requestID), zap.Error(err))
		api.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := api.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		api.writeServiceError(w, r, err, "failed to login")
		return
	}

	api.logger.Info("success to login", zap.String("request.id", requestID), zap.String("user.name", req.Username))
	api.writeSuccess(w, r, http.StatusOK, "Login succeeded.", nil, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me returns the authenticated user profile.
//
//	@Summary	Current user profile
//	@Tags		users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	APIResponse{data=UserOut}
//	@Failure	401	{object}	APIError
//	@Router		/users/me [get]
func (api *APIHandler) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, ErrInvalidToken.Error())
		return
	}
	api.writeSuccess(w, r, http.StatusOK, "User fetched successfully.", nil, NewUserOut(user))
}
