package checkout

import (
	"context"
	"time"

	"github.com/nmoraleda/storefront/internal/checkout/gateway"
	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

// Payment method classes. Codes outside both sets are unimplemented.
var (
	codMethodCodes = map[string]struct{}{
		"cod":              {},
		"cash_on_delivery": {},
	}
	gatewayMethodCodes = map[string]struct{}{
		"online_gateway": {},
		"card_online":    {},
	}
)

// PaymentResult is the terminal outcome of an online-gateway payment wait.
type PaymentResult struct {
	OrderID string
	Status  storeapi.PaymentStatus
	Err     error
}

// Handoff carries the out-of-band payment surface for online gateways. Done
// resolves once, with the payment outcome or the wait-window result.
type Handoff struct {
	RedirectURL string
	Done        <-chan PaymentResult
}

// PlaceOrder executes the terminal transition. It runs a strict two-phase
// server sequence, (a) commit payment+shipping selection then (b) confirm
// the order, followed by the payment finalization branch. Phase (b) is
// never attempted when (a) fails, and each phase failure halts the sequence
// with its own error. For online-gateway methods the returned Handoff
// carries the payment surface URL; for every other outcome the Handoff is
// nil.
func (s *Store) PlaceOrder(ctx context.Context, comment string) (*Handoff, error) {
	if err := s.ensureNotTerminal(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	payment, shipping := s.selectedPayment, s.selectedShipping
	s.mu.Unlock()
	if payment == nil || shipping == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment and shipping methods must be selected")
	}

	// phase (a)
	if err := s.api.SetPaymentAndShipping(ctx, payment.Code, shipping.Code, comment); err != nil {
		return nil, err
	}

	// phase (b)
	confirmation, err := s.api.ConfirmOrder(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.orderID = confirmation.OrderID
	s.paymentStatus = storeapi.PaymentStatusPending
	s.mu.Unlock()
	s.metrics.IncMutation(storeName, "place_order")

	switch {
	case isCOD(payment.Code):
		return nil, s.finalizeCOD(ctx, confirmation.OrderID)
	case isGateway(payment.Code):
		return s.startGatewayWait(ctx, confirmation.OrderID)
	default:
		// order stays confirmed-but-unpaid; no further server contact
		return nil, pkgerrors.New(pkgerrors.CodeUnimplemented, "payment method "+payment.Code+" is not implemented")
	}
}

// finalizeCOD confirms payment immediately. A failure leaves the order
// confirmed but unpaid; there is no retry and no rollback of the order.
func (s *Store) finalizeCOD(ctx context.Context, orderID string) error {
	if err := s.api.ConfirmPayment(ctx, orderID); err != nil {
		return err
	}

	s.mu.Lock()
	s.paymentStatus = storeapi.PaymentStatusPaid
	s.mu.Unlock()

	if err := s.cart.Clear(ctx); err != nil {
		s.logger.Error(s.logger.WithOrderID(ctx, orderID), "clear cart after payment", err)
	}
	return nil
}

// startGatewayWait obtains the payment surface URL and waits out-of-band for
// the completion signal, bounded by the wait window.
func (s *Store) startGatewayWait(ctx context.Context, orderID string) (*Handoff, error) {
	handoff, err := s.api.CreateGatewayHandoff(ctx, orderID)
	if err != nil {
		return nil, err
	}

	signals := make(chan gateway.Signal, 1)
	s.mu.Lock()
	s.waiters[orderID] = signals
	s.mu.Unlock()

	done := make(chan PaymentResult, 1)
	go s.awaitGateway(context.WithoutCancel(ctx), orderID, signals, done)

	return &Handoff{RedirectURL: handoff.RedirectURL, Done: done}, nil
}

// HandleGatewaySignal delivers a callback-listener signal to the waiting
// order, if any. Signals for unknown orders are dropped.
func (s *Store) HandleGatewaySignal(sig gateway.Signal) {
	s.mu.Lock()
	waiter, ok := s.waiters[sig.OrderID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case waiter <- sig:
	default:
	}
}

func (s *Store) awaitGateway(ctx context.Context, orderID string, signals <-chan gateway.Signal, done chan<- PaymentResult) {
	timer := time.NewTimer(s.waitWindow)
	defer timer.Stop()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, orderID)
		s.mu.Unlock()
	}()

	select {
	case sig := <-signals:
		if !sig.Success {
			done <- PaymentResult{
				OrderID: orderID,
				Status:  storeapi.PaymentStatusFailed,
				Err:     pkgerrors.New(pkgerrors.CodeBackend, "online payment failed"),
			}
			return
		}
		if err := s.api.ConfirmPayment(ctx, orderID); err != nil {
			done <- PaymentResult{OrderID: orderID, Status: storeapi.PaymentStatusPending, Err: err}
			return
		}
		s.mu.Lock()
		s.paymentStatus = storeapi.PaymentStatusPaid
		s.mu.Unlock()
		if err := s.cart.Clear(ctx); err != nil {
			s.logger.Error(s.logger.WithOrderID(ctx, orderID), "clear cart after payment", err)
		}
		done <- PaymentResult{OrderID: orderID, Status: storeapi.PaymentStatusPaid}

	case <-timer.C:
		// the listener is torn down; fall back to a single status poll so the
		// order does not end in a silently ambiguous state
		status, err := s.api.GetPaymentStatus(ctx, orderID)
		if err == nil && status == storeapi.PaymentStatusPaid {
			s.mu.Lock()
			s.paymentStatus = storeapi.PaymentStatusPaid
			s.mu.Unlock()
			if cerr := s.cart.Clear(ctx); cerr != nil {
				s.logger.Error(s.logger.WithOrderID(ctx, orderID), "clear cart after payment", cerr)
			}
			done <- PaymentResult{OrderID: orderID, Status: storeapi.PaymentStatusPaid}
			return
		}
		s.mu.Lock()
		s.paymentStatus = storeapi.PaymentStatusUnknown
		s.mu.Unlock()
		done <- PaymentResult{
			OrderID: orderID,
			Status:  storeapi.PaymentStatusUnknown,
			Err:     pkgerrors.New(pkgerrors.CodeTimeout, "online payment not confirmed within the wait window"),
		}
	}
}

func isCOD(code string) bool {
	_, ok := codMethodCodes[code]
	return ok
}

func isGateway(code string) bool {
	_, ok := gatewayMethodCodes[code]
	return ok
}
