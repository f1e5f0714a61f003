package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// ResultsServer serves the latest run summary and a live WebSocket stream of
// test transitions for display clients.
type ResultsServer struct {
	ctx    context.Context
	log    log.Logger
	server *http.Server
	hub    *StreamHub

	mu     sync.RWMutex
	latest *types.Summary
}

func NewResultsServer(logger log.Logger) *ResultsServer {
	return &ResultsServer{
		log: logger,
		hub: NewStreamHub(logger),
	}
}

// Hub exposes the stream hub so it can be wired into a run as a reporter.
func (rs *ResultsServer) Hub() *StreamHub {
	return rs.hub
}

func (rs *ResultsServer) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	router.HandleFunc("/api/summary", rs.handleSummary).Methods(http.MethodGet)
	router.Handle("/api/stream", rs.hub)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(router),
		Addr:    addr,
	}
	rs.server = server
	rs.ctx = ctx
	return rs.server.ListenAndServe()
}

func (rs *ResultsServer) Shutdown() error {
	rs.hub.Close()
	if rs.server == nil {
		return nil
	}
	return rs.server.Shutdown(rs.ctx)
}

// PublishSummary records the finalized summary and forwards it to connected
// stream clients.
func (rs *ResultsServer) PublishSummary(summary types.Summary) {
	rs.mu.Lock()
	rs.latest = &summary
	rs.mu.Unlock()
	rs.hub.PublishSummary(summary)
}

func (rs *ResultsServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	rs.mu.RLock()
	latest := rs.latest
	rs.mu.RUnlock()

	if latest == nil {
		http.Error(w, "no completed run yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(latest); err != nil {
		rs.log.Error("failed to encode summary", "err", err)
	}
}
