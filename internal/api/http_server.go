package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/models"
	"tillsync/internal/queue"
	"tillsync/internal/report"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the queue manager to the POS UI over a loopback JSON
// API. The UI owns rendering; every reliability decision stays in the
// manager.
type HTTPServer struct {
	cfg        config.APIConfig
	manager    *queue.Manager
	exportPath string
	server     *http.Server
	auth       *HTTPAuth
	logger     *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, manager *queue.Manager, exportPath string, metricsEnabled bool, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, manager: manager, exportPath: exportPath, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/healthz", srv.handleHealth)
	if metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/api/v1/queue", srv.handleQueue)
	mux.HandleFunc("/api/v1/queue/archive", srv.handleArchive)
	mux.HandleFunc("/api/v1/queue/export", srv.handleExport)
	mux.HandleFunc("/api/v1/orders", srv.handleOrders)
	mux.HandleFunc("/api/v1/orders/", srv.handleOrder)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("control API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the full middleware stack; tests drive it directly.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queueResponse struct {
	Orders       []models.QueuedOrder `json:"orders"`
	IsOnline     bool                 `json:"is_online"`
	PendingCount int                  `json:"pending_count"`
	FailedCount  int                  `json:"failed_count"`
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.manager.State()
	orders := snap.Orders
	if orders == nil {
		orders = []models.QueuedOrder{}
	}
	writeJSON(w, http.StatusOK, queueResponse{
		Orders:       orders,
		IsOnline:     snap.Online,
		PendingCount: snap.PendingCount(),
		FailedCount:  snap.FailedCount(),
	})
}

func (s *HTTPServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.manager.ArchiveSynced(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.manager.State()
	path, err := report.WriteOrdersReport(s.exportPath, snap.Orders)
	if err != nil {
		s.logger.Error().Err(err).Msg("order report export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

type enqueueRequest struct {
	Items         []models.OrderItem   `json:"items"`
	TotalCents    int64                `json:"total_cents"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	ReceiptData   *models.ReceiptData  `json:"receipt_data,omitempty"`
	GratisInfo    *models.GratisInfo   `json:"gratis_info,omitempty"`
}

func (s *HTTPServer) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body enqueueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := s.manager.Enqueue(r.Context(), queue.EnqueueInput{
		Items:         body.Items,
		TotalCents:    body.TotalCents,
		PaymentMethod: body.PaymentMethod,
		ReceiptData:   body.ReceiptData,
		GratisInfo:    body.GratisInfo,
	})
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

type paymentMethodRequest struct {
	Method     models.PaymentMethod `json:"method"`
	GratisInfo *models.GratisInfo   `json:"gratis_info,omitempty"`
}

// handleOrder routes /api/v1/orders/{localId}[/retry|/payment-method].
func (s *HTTPServer) handleOrder(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/orders/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	localID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		order, ok := s.manager.Order(localID)
		if !ok {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeJSON(w, http.StatusOK, order)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.manager.Delete(r.Context(), localID); err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	case len(parts) == 2 && parts[1] == "retry" && r.Method == http.MethodPost:
		if err := s.manager.Retry(r.Context(), localID); err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})

	case len(parts) == 2 && parts[1] == "payment-method" && r.Method == http.MethodPut:
		var body paymentMethodRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.manager.ChangePaymentMethod(r.Context(), localID, body.Method, body.GratisInfo); err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrSyncInFlight),
		errors.Is(err, queue.ErrNotFailed),
		errors.Is(err, queue.ErrNotMutable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrNoItems),
		errors.Is(err, queue.ErrBadPayment),
		errors.Is(err, queue.ErrBadTotal):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", recorder.status).Dur("dur", time.Since(start)).Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
