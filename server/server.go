package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-http-utils/etag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sardine-ai/spritecollab-server/assets"
	"github.com/sardine-ai/spritecollab-server/collab"
	"github.com/sardine-ai/spritecollab-server/credits"
	"github.com/sardine-ai/spritecollab-server/model"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Collab is the part of collab.SpriteCollab served over HTTP.
type Collab interface {
	Data() *model.Snapshot
	State() collab.State
	Status() collab.Status
	Refresh(ctx context.Context) error
}

// CreditResolver resolves numeric credit ids to users.
type CreditResolver interface {
	Lookup(ctx context.Context, id string) (*credits.User, error)
}

// publicPaths are served without an API key.
var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/status":  true,
	"/metrics": true,
}

type Server struct {
	Collab  Collab
	Credits CreditResolver // Optional
	URLs    *assets.URLBuilder
	AuthKey string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	httpServer *http.Server
}

func NewServer(ctx context.Context, c Collab, urls *assets.URLBuilder) *Server {
	ctx, cancel := context.WithCancel(ctx)
	return &Server{
		Collab: c,
		URLs:   urls,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stop cancels refreshes started through the API and waits for them.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Start serves HTTP on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	logrus.WithField("addr", addr).Info("Starting server")

	var handler http.Handler = s.CreateHandlers()
	handler = etag.Handler(handler, false)
	if s.AuthKey != "" {
		handler = Auth(handler, s.AuthKey)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) CreateHandlers() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Get("/status", s.status)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/refresh", s.refresh)

	r.Get("/data/config", s.spriteConfig)
	r.Get("/data/credits", s.creditNames)
	r.Get("/data/monsters", s.monsters)
	r.Get("/data/monsters/{id}", s.monster)
	r.Get("/credits/{id}", s.credit)
	r.Get("/assets/*", s.asset)
	return r
}

// Auth is a middleware that checks if the request is authenticated.
// If not, it returns a 401 Unauthorized response. Health and metrics
// endpoints are always served.
func Auth(next http.Handler, authKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-KEY")
		if key == "" || key != authKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Collab.Data() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.Collab.Data() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	data := s.Collab.Data()
	response := map[string]interface{}{
		"healthy": data != nil,
		"ready":   data != nil,
		"refresh": s.Collab.Status(),
	}
	if data != nil {
		response["monsters"] = len(*data.Tracker)
		response["credit_names"] = len(data.CreditNames)
	}
	writeJSON(w, http.StatusOK, response)
}

// refresh starts a refresh in the background. It answers 409 if a refresh is
// already running.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if s.Collab.State() == collab.Refreshing {
		writeJSON(w, http.StatusConflict, map[string]string{"status": collab.ErrRefreshInProgress.Error()})
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.Collab.Refresh(s.ctx)
		if err != nil && !errors.Is(err, collab.ErrRefreshInProgress) {
			logrus.WithError(err).Error("error in requested refresh")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (s *Server) spriteConfig(w http.ResponseWriter, r *http.Request) {
	data := s.snapshot(w)
	if data == nil {
		return
	}
	writeData(w, r, data.SpriteConfig)
}

func (s *Server) creditNames(w http.ResponseWriter, r *http.Request) {
	data := s.snapshot(w)
	if data == nil {
		return
	}
	writeData(w, r, data.CreditNames)
}

func (s *Server) monsters(w http.ResponseWriter, r *http.Request) {
	data := s.snapshot(w)
	if data == nil {
		return
	}
	writeData(w, r, data.Tracker.MonsterIDs())
}

func (s *Server) monster(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid monster id", http.StatusBadRequest)
		return
	}
	data := s.snapshot(w)
	if data == nil {
		return
	}
	group, ok := data.Tracker.Lookup(id, nil)
	if !ok {
		http.Error(w, "monster not found", http.StatusNotFound)
		return
	}
	writeData(w, r, group)
}

type creditResponse struct {
	model.CreditName
	User *credits.User `json:"user,omitempty"`
}

func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	data := s.snapshot(w)
	if data == nil {
		return
	}
	id := chi.URLParam(r, "id")
	name, ok := data.CreditNames.Get(id)
	if !ok {
		http.Error(w, "credit not found", http.StatusNotFound)
		return
	}
	response := creditResponse{CreditName: name}
	if s.Credits != nil && credits.IsUserID(id) {
		user, err := s.Credits.Lookup(r.Context(), id)
		switch {
		case err == nil:
			response.User = user
		case errors.Is(err, credits.ErrUserNotFound):
		default:
			logrus.WithError(err).WithField("credit_id", id).Warn("error resolving user")
		}
	}
	writeData(w, r, response)
}

type assetResponse struct {
	Kind      string `json:"kind"`
	MonsterID int    `json:"monster_id"`
	FormPath  []int  `json:"form_path"`
	URL       string `json:"url"`
}

// asset resolves a generated asset path against the current tracker.
func (s *Server) asset(w http.ResponseWriter, r *http.Request) {
	a, ok := assets.Match(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := s.snapshot(w)
	if data == nil {
		return
	}
	if _, ok := data.Tracker.Lookup(a.MonsterID, a.FormPath); !ok {
		http.NotFound(w, r)
		return
	}
	formPath := a.FormPath
	if formPath == nil {
		formPath = []int{}
	}
	writeData(w, r, assetResponse{
		Kind:      a.Kind.String(),
		MonsterID: a.MonsterID,
		FormPath:  formPath,
		URL:       s.URLs.URL(a),
	})
}

// snapshot returns the published snapshot, or answers 503 if there is none.
func (s *Server) snapshot(w http.ResponseWriter) *model.Snapshot {
	data := s.Collab.Data()
	if data == nil {
		http.Error(w, "data not loaded", http.StatusServiceUnavailable)
	}
	return data
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

// writeData writes v as JSON, or as YAML if the format query parameter asks
// for it. YAML output keeps the JSON field names.
func writeData(w http.ResponseWriter, r *http.Request, v interface{}) {
	if r.URL.Query().Get("format") != "yaml" {
		writeJSON(w, http.StatusOK, v)
		return
	}
	data, err := toYAML(v)
	if err != nil {
		logrus.WithError(err).Error("error encoding yaml")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	if _, err := w.Write(data); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

func toYAML(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}
