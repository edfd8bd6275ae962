package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupLibraryRoutes injects auth, books and loans endpoints.
func (api *APIHandler) SetupLibraryRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))

	router.POST("/auth/signup", m.public(api.Signup))
	router.POST("/auth/login", m.public(api.Login))

	router.POST("/books", m.public(api.AdminOnly(api.CreateBook)))
	router.GET("/books", m.public(api.SearchBooks))

	router.POST("/loans/borrow", m.public(api.Authenticated(api.Borrow)))
	router.GET("/users/me", m.public(api.Authenticated(api.Me)))
	router.GET("/users/me/loans", m.public(api.Authenticated(api.MyLoans)))
	return router
}
