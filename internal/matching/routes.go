package matching

import (
	"github.com/gorilla/mux"

	"github.com/hourvillage/timebank-backend/internal/auth"
)

func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	api := router.PathPrefix("/api/v1/matching").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// Suggestions
	api.HandleFunc("/suggestions", handler.GetSuggestions).Methods("GET")
	api.HandleFunc("/hot", handler.GetHotMatches).Methods("GET")
	api.HandleFunc("/mutual", handler.GetMutualMatches).Methods("GET")
	api.HandleFunc("/matches", handler.GetMatches).Methods("GET")

	// Funnel
	api.HandleFunc("/interactions", handler.RecordInteraction).Methods("POST")
	api.HandleFunc("/conversions", handler.MarkConversion).Methods("POST")

	// Preferences & learning
	api.HandleFunc("/preferences", handler.GetPreferences).Methods("GET")
	api.HandleFunc("/preferences", handler.SavePreferences).Methods("PUT")
	api.HandleFunc("/learning", handler.ResetLearning).Methods("DELETE")

	// Analytics
	api.HandleFunc("/analytics/dashboard", handler.GetDashboard).Methods("GET")

	// Push socket
	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(authMiddleware.Authenticate)
	ws.HandleFunc("", handler.ServeWS).Methods("GET")
}
