package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/nodetalk/appview/internal/config"
	"github.com/nodetalk/appview/internal/database"
	"github.com/nodetalk/appview/internal/gateway"
	"github.com/nodetalk/appview/internal/indexer"
	"github.com/nodetalk/appview/internal/stats"
)

type AppViewServer struct {
	log            *log.Logger
	db             database.AppViewRepository
	indexer        *indexer.Indexer
	gateway        *gateway.Gateway
	stats          stats.StatsProvider
	mux            *http.Server
	allowedOrigins []string
}

func NewAppViewServer(mux *http.ServeMux, logger *log.Logger, db database.AppViewRepository,
	idx *indexer.Indexer, gw *gateway.Gateway, statsProvider stats.StatsProvider, cfg *config.Config) *AppViewServer {
	s := &AppViewServer{
		log:            logger,
		db:             db,
		indexer:        idx,
		gateway:        gw,
		stats:          statsProvider,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/subscribe", s.subscribe)
	mux.HandleFunc("POST /api/ingest", s.ingestImmediate)
	mux.HandleFunc("POST /api/rooms/{roomId}/join", s.joinRoom)
	mux.HandleFunc("DELETE /api/rooms/{roomId}/leave", s.leaveRoom)
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("GET /api/rooms/{roomId}/members", s.listMembers)
	mux.HandleFunc("GET /api/rooms/{roomId}/messages", s.listMessages)
	mux.HandleFunc("POST /api/rooms/{roomId}/read", s.markRead)
	mux.HandleFunc("POST /api/friends/request", s.sendFriendRequest)
	mux.HandleFunc("GET /api/friends/requests/received", s.receivedFriendRequests)
	mux.HandleFunc("GET /api/friends/requests/sent", s.sentFriendRequests)
	mux.HandleFunc("POST /api/friends/request/{id}/respond", s.respondFriendRequest)
	mux.HandleFunc("DELETE /api/friends/request/{id}", s.cancelFriendRequest)
	mux.HandleFunc("GET /api/friends", s.listFriends)
	mux.HandleFunc("DELETE /api/friends", s.removeFriend)
	mux.HandleFunc("POST /api/profile/updated", s.profileUpdated)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *AppViewServer) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *AppViewServer) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
