// Package server exposes the dispatch scheduler and the agent registry over
// HTTP and WebSocket. Handlers are thin: validation and encoding here, all
// semantics in the dispatch package.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/oneprompt/agentd/agent"
	"github.com/oneprompt/agentd/config"
	"github.com/oneprompt/agentd/dispatch"
)

const (
	// MaxClients caps concurrent WebSocket connections
	MaxClients = 64

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server serves the job and agent API and streams job updates to
// WebSocket clients
type Server struct {
	db        *sql.DB
	scheduler *dispatch.Scheduler
	agents    map[string]*agent.Definition
	loadOrder []string
	cfg       *config.Config
	logger    *zap.SugaredLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	broadcastDrops atomic.Int64
}

// New builds a server around an already-constructed scheduler
func New(db *sql.DB, scheduler *dispatch.Scheduler, agents map[string]*agent.Definition, loadOrder []string, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		db:         db,
		scheduler:  scheduler,
		agents:     agents,
		loadOrder:  loadOrder,
		cfg:        cfg,
		logger:     logger.Named("server"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Routes builds the HTTP mux
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/agents", s.handleAgentList)
	mux.HandleFunc("/api/agents/", s.handleAgentRun)
	mux.HandleFunc("/api/jobs", s.handleJobList)
	mux.HandleFunc("/api/jobs/", s.handleJob)
	mux.HandleFunc("/ws/jobs", s.handleWebSocket)

	return mux
}

// Start begins serving on the configured port. Blocks until the listener
// fails or Stop is called.
func (s *Server) Start() error {
	s.wg.Add(1)
	go s.runHub()

	s.startJobUpdateBroadcaster()

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Infow("Server listening", "addr", addr, "agents", len(s.agents))

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts down the HTTP listener, the hub, and all client connections
func (s *Server) Stop() error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	for client := range s.clients {
		client.close()
		delete(s.clients, client)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Infow("Server stopped")
	return err
}

// runHub owns the client set. Register and unregister flow through here so
// connection handlers never touch the map concurrently with broadcasts.
func (s *Server) runHub() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected", "client_id", client.id, "total_clients", total)
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	total := len(s.clients)
	s.mu.Unlock()

	client.close()
	s.logger.Infow("Client disconnected", "client_id", client.id, "total_clients", total)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"agents":  len(s.agents),
		"clients": clients,
	})
}
