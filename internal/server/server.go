// Package server exposes the bot over HTTP: status and ledger queries,
// runtime control, and a websocket stream of state updates.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/strikebot-labs/strikebot/internal/backtest"
	"github.com/strikebot-labs/strikebot/internal/bot"
	"github.com/strikebot-labs/strikebot/internal/config"
	"github.com/strikebot-labs/strikebot/internal/datasource"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/storage"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// ControllerFactory builds a fresh trading loop from the current
// configuration. Each start gets a new controller so mode changes take
// effect cleanly.
type ControllerFactory func(cfg *config.Config) (*bot.Controller, error)

// Server is the HTTP control surface. It owns the controller lifecycle;
// everything else reads state through the hub.
type Server struct {
	cfg     *config.Config
	hub     *bot.StateHub
	store   *storage.Store
	factory ControllerFactory
	logger  *logger.Logger

	mu         sync.Mutex
	controller *bot.Controller
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates the server. store may be nil to disable the ledger routes.
func New(cfg *config.Config, hub *bot.StateHub, store *storage.Store, factory ControllerFactory, log *logger.Logger) *Server {
	return &Server{
		cfg:     cfg,
		hub:     hub,
		store:   store,
		factory: factory,
		logger:  log,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/market", s.handleMarket).Methods(http.MethodGet)
	api.HandleFunc("/position", s.handlePosition).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleUpdateRisk).Methods(http.MethodPost)
	api.HandleFunc("/mode", s.handleMode).Methods(http.MethodPost)
	api.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/squareoff", s.handleSquareOff).Methods(http.MethodPost)
	api.HandleFunc("/backtest", s.handleBacktest).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWebSocket)

	return r
}

// ListenAndServe runs the HTTP server until the context is cancelled, then
// stops the controller and shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.stopController()
		srv.Shutdown(context.Background())
	}()

	s.logger.Info("http server listening", zap.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Running reports whether a controller loop is active.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.controller != nil
}

func (s *Server) startController() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controller != nil {
		return errors.New(errors.ErrCodeInvalidOrder, "bot is already running")
	}

	controller, err := s.factory(s.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.controller = controller
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)

		if err := controller.Run(ctx); err != nil {
			s.logger.Error("controller exited with error", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) stopController() {
	s.mu.Lock()

	if s.controller == nil {
		s.mu.Unlock()

		return
	}

	cancel := s.cancel
	done := s.done
	s.controller = nil
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.hub.Snapshot()
	status.Running = s.Running()

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	status := s.hub.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"index_name":  status.IndexName,
		"market_open": status.MarketOpen,
		"index_price": status.IndexPrice,
		"direction":   status.Direction,
		"supertrend":  status.SuperTrend,
		"macd":        status.MACD,
		"adx":         status.ADX,
		"updated_at":  status.UpdatedAt,
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	status := s.hub.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"position":     status.Position,
		"option_price": status.OptionPrice,
		"stop":         status.Stop,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "trade ledger is disabled")

		return
	}

	summary, err := s.store.Summarize()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	days, err := s.store.RecentDailyStats(30)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_trades": summary.TotalTrades,
		"total_pnl":    summary.TotalPnL,
		"win_rate":     summary.WinRate,
		"days":         days,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "trade ledger is disabled")

		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")

			return
		}

		limit = parsed
	}

	trades, err := s.store.Trades(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Credentials are tagged out of the JSON form.
	writeJSON(w, http.StatusOK, s.cfg)
}

// handleUpdateRisk replaces the risk thresholds. Invalid parameters are
// rejected and the running thresholds stay in force.
func (s *Server) handleUpdateRisk(w http.ResponseWriter, r *http.Request) {
	var riskCfg config.RiskConfig
	if err := json.NewDecoder(r.Body).Decode(&riskCfg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed risk configuration")

		return
	}

	params := riskCfg.Params()
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	s.mu.Lock()
	s.cfg.Risk = riskCfg
	controller := s.controller
	s.mu.Unlock()

	if controller != nil {
		if err := controller.ApplyRiskParams(params); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())

			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")

		return
	}

	if req.Mode != "paper" && req.Mode != "live" {
		writeError(w, http.StatusBadRequest, "mode must be paper or live")

		return
	}

	if s.Running() {
		writeError(w, http.StatusConflict, "stop the bot before switching mode")

		return
	}

	s.mu.Lock()
	s.cfg.Trading.Mode = req.Mode
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SetSetting("trading.mode", req.Mode); err != nil {
			s.logger.Error("failed to persist mode", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"mode": req.Mode})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.startController(); err != nil {
		if errors.HasCode(err, errors.ErrCodeInvalidOrder) {
			writeError(w, http.StatusConflict, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.stopController()

	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (s *Server) handleSquareOff(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()

	if controller == nil {
		writeError(w, http.StatusConflict, "bot is not running")

		return
	}

	controller.RequestSquareOff()

	writeJSON(w, http.StatusOK, map[string]any{"status": "square-off requested"})
}

// handleBacktest replays a CSV candle file through the decision and risk
// kernel with the currently configured strategy.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CSVPath           string `json:"csv_path"`
		ResampleToSeconds int    `json:"resample_to_seconds"`
		CloseAtEnd        bool   `json:"close_at_end"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CSVPath == "" {
		writeError(w, http.StatusBadRequest, "csv_path is required")

		return
	}

	src, err := datasource.NewCSVSource(req.CSVPath, s.logger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}
	defer src.Close()

	candles, err := src.ReadAll()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	replayer, err := backtest.NewReplayer(backtest.ReplayOptions(s.cfg, req.ResampleToSeconds, req.CloseAtEnd), s.logger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	result, err := replayer.Run(candles)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
