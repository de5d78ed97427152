package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/storyroom/storyroom/internal/config"
	"github.com/storyroom/storyroom/internal/database"
	"github.com/storyroom/storyroom/internal/server"
	"github.com/teris-io/shortid"
)

type StoryRoomApp struct {
	log            *log.Logger
	db             database.StoryRepository
	srv            *http.Server
	cs             *server.ChatServer
	allowedOrigins []string
	// injectable for tests
	generateShortId func() (string, error)
}

func NewStoryRoomApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.StoryRepository, cfg *config.Config) *StoryRoomApp {
	s := &StoryRoomApp{
		log:             logger,
		db:              db,
		cs:              cs,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("GET /api/rooms/{id}", s.getRoom)
	mux.HandleFunc("PUT /api/rooms/{id}", s.updateRoom)
	mux.HandleFunc("DELETE /api/rooms/{id}", s.deleteRoom)
	mux.HandleFunc("POST /api/characters", s.createCharacter)
	mux.HandleFunc("GET /api/characters", s.listCharacters)
	mux.HandleFunc("GET /api/characters/{id}", s.getCharacter)
	mux.HandleFunc("PUT /api/characters/{id}", s.updateCharacter)
	mux.HandleFunc("DELETE /api/characters/{id}", s.deleteCharacter)
	mux.HandleFunc("POST /api/conversations", s.createConversation)
	mux.HandleFunc("GET /api/conversations", s.listConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.getConversation)
	mux.HandleFunc("POST /api/users", s.createUser)
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

	s.srv = srv
	return s
}

func (s *StoryRoomApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *StoryRoomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *StoryRoomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
