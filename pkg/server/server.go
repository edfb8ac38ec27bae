package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"memefolio/pkg/feed"
	"memefolio/pkg/metrics"
	"memefolio/pkg/models"
	"memefolio/pkg/ramp"
	"memefolio/pkg/registry"
	"memefolio/pkg/rpc"
	"memefolio/pkg/swap"
	"memefolio/pkg/watcher"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const maxBody = 1 << 16

type Server struct {
	watcher *watcher.Watcher
	metrics *metrics.Metrics
	log     zerolog.Logger
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

func NewServer(w *watcher.Watcher, m *metrics.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		watcher: w,
		metrics: m,
		log:     log.With().Str("component", "server").Logger(),
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/coins", s.handleCoins)
	s.mux.HandleFunc("GET /api/coins/{id}", s.handleCoin)
	s.mux.HandleFunc("GET /api/gainers", s.handleGainers)
	s.mux.HandleFunc("GET /api/holdings", s.handleHoldings)
	s.mux.HandleFunc("GET /api/rewards", s.handleRewards)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("POST /api/search/select", s.handleSelect)
	s.mux.HandleFunc("GET /api/chart/{id}", s.handleChart)
	s.mux.HandleFunc("POST /api/swap/quote", s.handleSwapQuote)
	s.mux.HandleFunc("POST /api/swap/transaction", s.handleSwapTransaction)
	s.mux.HandleFunc("GET /api/ramp", s.handleRamp)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	go s.listenToWatcher()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Status())
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Snapshot())
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	coin, ok := s.watcher.Coin(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "coin not found")
		return
	}
	writeJSON(w, http.StatusOK, coin)
}

func (s *Server) handleGainers(w http.ResponseWriter, r *http.Request) {
	n := registry.DefaultGainers
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, s.watcher.Gainers(n))
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Portfolio().HoldingsView())
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Portfolio().RewardsView())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.watcher.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.log.Warn().Err(err).Msg("search failed")
		writeError(w, http.StatusBadGateway, "search unavailable")
		return
	}
	if results == nil {
		results = []feed.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var result feed.SearchResult
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid search result")
		return
	}
	if strings.TrimSpace(result.Name) == "" {
		writeError(w, http.StatusBadRequest, "search result has no name")
		return
	}
	coin, added, err := s.watcher.SelectSearchResult(r.Context(), result)
	if err != nil {
		if errors.Is(err, rpc.ErrUnsupportedChain) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"coin": coin, "added": added})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	days := feed.DefaultChartDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}
	points, err := s.watcher.Chart(r.Context(), r.PathValue("id"), days)
	if err != nil {
		if errors.Is(err, watcher.ErrCoinNotFound) {
			writeError(w, http.StatusNotFound, "coin not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, points)
}

type swapRequest struct {
	CoinID string          `json:"coinId"`
	Side   string          `json:"side"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) decodeSwap(w http.ResponseWriter, r *http.Request) (swapRequest, swap.Side, bool) {
	var req swapRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid swap request")
		return req, "", false
	}
	side, ok := swap.ParseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, swap.UserMessage(swap.ErrInvalidSide))
		return req, "", false
	}
	return req, side, true
}

func (s *Server) swapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, watcher.ErrCoinNotFound):
		writeError(w, http.StatusNotFound, "coin not found")
	case swap.IsUserError(err):
		writeError(w, http.StatusBadRequest, swap.UserMessage(err))
	default:
		s.log.Warn().Err(err).Msg("swap quote failed")
		writeError(w, http.StatusBadGateway, swap.UserMessage(err))
	}
}

func (s *Server) handleSwapQuote(w http.ResponseWriter, r *http.Request) {
	req, side, ok := s.decodeSwap(w, r)
	if !ok {
		return
	}
	q, err := s.watcher.QuoteSwap(r.Context(), req.CoinID, side, req.Amount)
	if err != nil {
		s.swapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleSwapTransaction(w http.ResponseWriter, r *http.Request) {
	req, side, ok := s.decodeSwap(w, r)
	if !ok {
		return
	}
	tx, err := s.watcher.BuildSwapTransaction(r.Context(), req.CoinID, side, req.Amount)
	if err != nil {
		s.swapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleRamp(w http.ResponseWriter, r *http.Request) {
	flow, ok := ramp.ParseFlow(r.URL.Query().Get("flow"))
	if !ok {
		writeError(w, http.StatusBadRequest, "flow must be buy or sell")
		return
	}
	chain, ok := models.ParseChainID(r.URL.Query().Get("chain"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain")
		return
	}
	u, err := s.watcher.RampURL(flow, chain)
	if err != nil {
		writeError(w, http.StatusBadRequest, swap.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) initialState() map[string]interface{} {
	p := s.watcher.Portfolio()
	return map[string]interface{}{
		"type": "initial",
		"data": map[string]interface{}{
			"status":   s.watcher.Status(),
			"coins":    s.watcher.Snapshot(),
			"holdings": p.HoldingsView(),
			"rewards":  p.RewardsView(),
		},
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// The initial write and registration share the lock so broadcasts never interleave with it.
	s.mu.Lock()
	if err := conn.WriteJSON(s.initialState()); err != nil {
		s.mu.Unlock()
		return
	}
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher() {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		_ = client.Close()
		delete(s.clients, client)
	}
}
