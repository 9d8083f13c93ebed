// Package gateway receives the asynchronous completion signal an online
// payment gateway posts back after the customer finishes (or abandons) the
// out-of-band payment surface.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nmoraleda/storefront/pkg/logger"
)

// Signal is one gateway completion callback.
type Signal struct {
	OrderID string
	Success bool
}

// Handler consumes signals as they arrive.
type Handler func(Signal)

// Listener is a localhost HTTP endpoint the gateway redirects to. It only
// translates callbacks into signals; the checkout store owns the wait window.
type Listener struct {
	server  *http.Server
	logger  *logger.Logger
	handler Handler
}

func NewListener(addr string, logg *logger.Logger, handler Handler) (*Listener, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("gateway listener address is required")
	}
	if logg == nil {
		return nil, errors.New("gateway listener logger is required")
	}
	if handler == nil {
		return nil, errors.New("gateway listener handler is required")
	}

	l := &Listener{logger: logg, handler: handler}

	r := chi.NewRouter()
	r.Post("/payment/callback", l.handleCallback)

	l.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return l, nil
}

// Start serves the callback endpoint until Shutdown.
func (l *Listener) Start(ctx context.Context) error {
	l.logger.Info(l.logger.WithField(ctx, "addr", l.server.Addr), "gateway callback listener started")
	if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (l *Listener) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad callback payload", http.StatusBadRequest)
		return
	}
	orderID := strings.TrimSpace(r.Form.Get("order_id"))
	if orderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.Form.Get("status")))

	sig := Signal{OrderID: orderID, Success: status == "success"}
	l.handler(sig)

	ctx := l.logger.WithFields(r.Context(), map[string]any{
		"order_id": orderID,
		"status":   status,
	})
	l.logger.Info(ctx, "gateway callback received")
	w.WriteHeader(http.StatusNoContent)
}
