package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/matthewjhunter/wayfinder"
)

func newRouter(engine *wayfinder.Engine) *mux.Router {
	h := &handlers{engine: engine}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/navlogs", h.handleNavlogs).Methods(http.MethodPost)
	api.HandleFunc("/themes", h.handleThemeList).Methods(http.MethodGet)
	api.HandleFunc("/themes/{id}", h.handleTheme).Methods(http.MethodGet)
	api.HandleFunc("/articles/{id}", h.handleArticle).Methods(http.MethodGet)
	api.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)

	return r
}
