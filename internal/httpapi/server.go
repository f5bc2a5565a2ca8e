// Package httpapi serves the dashboard and chat REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vegardlu/homelab-core/internal/cache"
	"github.com/vegardlu/homelab-core/internal/dashboard"
	"github.com/vegardlu/homelab-core/internal/logging"
	"github.com/vegardlu/homelab-core/internal/weather"
)

// chatService answers chat messages. *assistant.Assistant implements it.
type chatService interface {
	Chat(ctx context.Context, sessionID, message string) (string, error)
}

// Server is the REST API server.
type Server struct {
	dashboard *dashboard.Service
	weather   *weather.Service
	cache     *cache.Cache
	chat      chatService
	users     userStore
	jwtSecret string
	port      int
	logger    *logging.Logger

	httpServer *http.Server
}

// Options carries the optional collaborators for NewServer.
type Options struct {
	Chat      chatService
	Users     userStore
	JWTSecret string
}

// NewServer creates the REST API server. Chat and Users may be nil; the
// corresponding features are then disabled or skipped.
func NewServer(d *dashboard.Service, w *weather.Service, c *cache.Cache, port int, logger *logging.Logger, opts Options) *Server {
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}
	return &Server{
		dashboard: d,
		weather:   w,
		cache:     c,
		chat:      opts.Chat,
		users:     opts.Users,
		jwtSecret: opts.JWTSecret,
		port:      port,
		logger:    logger,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api/dashboard", func(r chi.Router) {
			r.Get("/lights", s.handleLights)
			r.Get("/weather", s.handleWeather)
			r.Get("/sensors", s.handleSensors)
			r.Get("/blinds", s.handleBlinds)
			r.Get("/search", s.handleSearch)

			r.Post("/lights/{id}/toggle", s.handleToggleLight)
			r.Post("/lights/{id}/state", s.handleUpdateLight)

			r.Post("/blinds/{id}/position", s.handleBlindPosition)
			r.Post("/blinds/{id}/open", s.handleBlindCommand("open"))
			r.Post("/blinds/{id}/close", s.handleBlindCommand("close"))
			r.Post("/blinds/{id}/stop", s.handleBlindCommand("stop"))
		})

		r.Post("/api/chat", s.handleChat)
	})

	return r
}

// Start starts the API server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLights(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dashboard.Lights())
}

func (s *Server) handleBlinds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dashboard.Blinds())
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dashboard.Sensors())
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.weather.All(r.Context()))
}

// searchHit is a scored search result in the API response shape.
type searchHit struct {
	EntityID     string `json:"entityId"`
	FriendlyName string `json:"friendlyName"`
	Area         string `json:"area,omitempty"`
	Floor        string `json:"floor,omitempty"`
	State        string `json:"state"`
	Score        int    `json:"score"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results := s.cache.Search(query)

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, searchHit{
			EntityID:     res.Entity.EntityID,
			FriendlyName: res.Entity.FriendlyName,
			Area:         res.Entity.Area,
			Floor:        res.Entity.Floor,
			State:        res.Entity.State,
			Score:        res.Score,
		})
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleToggleLight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.dashboard.ToggleLight(r.Context(), id); err != nil {
		s.commandFailed(w, "toggle light", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdateLight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update dashboard.LightUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if n := len(update.RGBColor); n != 0 && n != 3 {
		s.writeError(w, http.StatusBadRequest, "rgbColor must have exactly 3 components")
		return
	}

	if err := s.dashboard.UpdateLight(r.Context(), id, update); err != nil {
		s.commandFailed(w, "update light", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBlindPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Position *int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Position == nil {
		// Position may also arrive as a query parameter.
		if q := r.URL.Query().Get("position"); q != "" {
			if pos, perr := strconv.Atoi(q); perr == nil {
				body.Position = &pos
			}
		}
	}
	if body.Position == nil {
		s.writeError(w, http.StatusBadRequest, "position is required")
		return
	}
	if *body.Position < 0 || *body.Position > 100 {
		s.writeError(w, http.StatusBadRequest, "position must be between 0 and 100")
		return
	}

	if err := s.dashboard.SetBlindPosition(r.Context(), id, *body.Position); err != nil {
		s.commandFailed(w, "set blind position", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBlindCommand(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var err error
		switch action {
		case "open":
			err = s.dashboard.OpenBlind(r.Context(), id)
		case "close":
			err = s.dashboard.CloseBlind(r.Context(), id)
		case "stop":
			err = s.dashboard.StopBlind(r.Context(), id)
		}
		if err != nil {
			s.commandFailed(w, action+" blind", id, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat assistant is not configured")
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	session := sessionID(r)
	response, err := s.chat.Chat(r.Context(), session, body.Message)
	if err != nil {
		s.logger.Error("Chat failed", "session", session, "error", err)
		s.writeError(w, http.StatusBadGateway, "chat failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

// commandFailed maps a gateway write failure to a 502 with an error body.
// Write errors are surfaced, never swallowed.
func (s *Server) commandFailed(w http.ResponseWriter, action, id string, err error) {
	s.logger.Error("Command failed", "action", action, "entity_id", id, "error", err)
	s.writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
