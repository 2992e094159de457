package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)

	mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	mux.HandleFunc("POST /api/rooms/{name}/verify", s.handleVerifyRoom)

	mux.HandleFunc("GET /api/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/messages", s.handleCreateMessage)
	mux.HandleFunc("DELETE /api/messages/{id}", s.handleDeleteMessage)

	mux.HandleFunc("GET /api/profiles/{username}", s.handleGetProfile)
	mux.HandleFunc("PUT /api/profiles/{username}", s.handlePutProfile)

	mux.HandleFunc("POST /api/admin/jumpscare", s.handleAdminJumpscare)

	mux.HandleFunc("GET /api/gifs/search", s.handleGifSearch)
	// Path used by the original browser client.
	mux.HandleFunc("GET /api/giphy/search", s.handleGifSearch)
	return mux
}
