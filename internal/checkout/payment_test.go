package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/nmoraleda/storefront/internal/checkout/gateway"
	"github.com/nmoraleda/storefront/pkg/config"
	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

func newPaymentStore(t *testing.T, api *stubBackend, cart *stubCart, waitWindow time.Duration) *Store {
	t.Helper()
	store, err := NewStore(StoreParams{
		API:     api,
		Cart:    cart,
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Payment: config.PaymentConfig{WaitWindow: waitWindow},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	advanceToPayment(t, store, api)
	return store
}

func TestPlaceOrderRequiresMethodSelection(t *testing.T) {
	t.Parallel()

	api := &stubBackend{}
	store := newTestStore(t, api, &stubCart{})

	_, err := store.PlaceOrder(context.Background(), "")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if api.setPaymentCalls != 0 {
		t.Fatal("no network call may happen before method selection")
	}
}

func TestPlaceOrderPhaseAFailureSkipsPhaseB(t *testing.T) {
	t.Parallel()

	api := &stubBackend{setPaymentErr: pkgerrors.New(pkgerrors.CodeBackend, "Shipping method rejected.")}
	store := newPaymentStore(t, api, &stubCart{}, time.Minute)
	if err := store.SelectPaymentMethod("cod"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	if _, err := store.PlaceOrder(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if api.confirmCalls != 0 {
		t.Fatal("order confirmation must not run after a failed selection commit")
	}
	if store.OrderID() != "" {
		t.Fatalf("no order id may be assigned, got %q", store.OrderID())
	}
}

func TestPlaceOrderPhaseBFailureKeepsPhaseA(t *testing.T) {
	t.Parallel()

	api := &stubBackend{confirmOrderErr: pkgerrors.New(pkgerrors.CodeNetwork, "dial tcp")}
	store := newPaymentStore(t, api, &stubCart{}, time.Minute)
	if err := store.SelectPaymentMethod("cod"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	if _, err := store.PlaceOrder(context.Background(), "leave at the door"); err == nil {
		t.Fatal("expected error")
	}
	if api.setPaymentCalls != 1 {
		t.Fatalf("expected selection committed, got %d calls", api.setPaymentCalls)
	}
	if api.lastComment != "leave at the door" {
		t.Fatalf("unexpected comment %q", api.lastComment)
	}
	if store.OrderID() != "" {
		t.Fatal("failed confirmation must not assign an order id")
	}

	// retry after the transient failure succeeds without repeating phase (a) validation
	api.confirmOrderErr = nil
	api.confirmation = storeapi.OrderConfirmation{OrderID: "1001"}
	if _, err := store.PlaceOrder(context.Background(), "leave at the door"); err != nil {
		t.Fatalf("retry place order: %v", err)
	}
	if store.OrderID() != "1001" {
		t.Fatalf("unexpected order id %q", store.OrderID())
	}
}

func TestPlaceOrderCODConfirmsAndClearsCart(t *testing.T) {
	t.Parallel()

	api := &stubBackend{confirmation: storeapi.OrderConfirmation{OrderID: "1001"}}
	cart := &stubCart{}
	store := newPaymentStore(t, api, cart, time.Minute)
	if err := store.SelectPaymentMethod("cod"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	handoff, err := store.PlaceOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if handoff != nil {
		t.Fatal("COD must not produce a gateway handoff")
	}
	if api.confirmPayCalls != 1 {
		t.Fatalf("expected payment confirmed, got %d calls", api.confirmPayCalls)
	}
	if store.PaymentStatus() != storeapi.PaymentStatusPaid {
		t.Fatalf("unexpected status %s", store.PaymentStatus())
	}
	if cart.clearCalls != 1 {
		t.Fatalf("expected cart cleared once, got %d", cart.clearCalls)
	}
}

func TestPlaceOrderCODConfirmFailureLeavesOrderUnpaid(t *testing.T) {
	t.Parallel()

	api := &stubBackend{
		confirmation:  storeapi.OrderConfirmation{OrderID: "1001"},
		confirmPayErr: pkgerrors.New(pkgerrors.CodeNetwork, "dial tcp"),
	}
	cart := &stubCart{}
	store := newPaymentStore(t, api, cart, time.Minute)
	if err := store.SelectPaymentMethod("cod"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	if _, err := store.PlaceOrder(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if store.OrderID() != "1001" {
		t.Fatal("order stays confirmed even when payment confirmation fails")
	}
	if store.PaymentStatus() != storeapi.PaymentStatusPending {
		t.Fatalf("unexpected status %s", store.PaymentStatus())
	}
	if cart.clearCalls != 0 {
		t.Fatal("cart must not be cleared for an unpaid order")
	}
}

func TestPlaceOrderUnknownMethodIsUnimplemented(t *testing.T) {
	t.Parallel()

	api := &stubBackend{confirmation: storeapi.OrderConfirmation{OrderID: "1001"}}
	store := newPaymentStore(t, api, &stubCart{}, time.Minute)
	if err := store.SelectPaymentMethod("crypto"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	_, err := store.PlaceOrder(context.Background(), "")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeUnimplemented {
		t.Fatalf("expected unimplemented error, got %v", err)
	}
	// the order itself was confirmed before the branch
	if store.OrderID() != "1001" {
		t.Fatalf("unexpected order id %q", store.OrderID())
	}
	if api.confirmPayCalls != 0 {
		t.Fatal("unknown methods must make no further network calls")
	}
}

func TestGatewaySuccessSignalFinalizesPayment(t *testing.T) {
	t.Parallel()

	api := &stubBackend{
		confirmation: storeapi.OrderConfirmation{OrderID: "1001"},
		handoff:      storeapi.GatewayHandoff{RedirectURL: "https://pay.example.com/1001"},
	}
	cart := &stubCart{}
	store := newPaymentStore(t, api, cart, time.Minute)
	if err := store.SelectPaymentMethod("online_gateway"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	handoff, err := store.PlaceOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if handoff == nil || handoff.RedirectURL != "https://pay.example.com/1001" {
		t.Fatalf("unexpected handoff %+v", handoff)
	}

	store.HandleGatewaySignal(gateway.Signal{OrderID: "1001", Success: true})

	select {
	case result := <-handoff.Done:
		if result.Err != nil {
			t.Fatalf("unexpected error: %v", result.Err)
		}
		if result.Status != storeapi.PaymentStatusPaid {
			t.Fatalf("unexpected status %s", result.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("payment result never resolved")
	}

	if store.PaymentStatus() != storeapi.PaymentStatusPaid {
		t.Fatalf("unexpected store status %s", store.PaymentStatus())
	}
	if cart.clearCalls != 1 {
		t.Fatalf("expected cart cleared, got %d", cart.clearCalls)
	}
}

func TestGatewayFailureSignal(t *testing.T) {
	t.Parallel()

	api := &stubBackend{
		confirmation: storeapi.OrderConfirmation{OrderID: "1001"},
		handoff:      storeapi.GatewayHandoff{RedirectURL: "https://pay.example.com/1001"},
	}
	cart := &stubCart{}
	store := newPaymentStore(t, api, cart, time.Minute)
	if err := store.SelectPaymentMethod("online_gateway"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	handoff, err := store.PlaceOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	store.HandleGatewaySignal(gateway.Signal{OrderID: "1001", Success: false})

	select {
	case result := <-handoff.Done:
		if result.Status != storeapi.PaymentStatusFailed {
			t.Fatalf("unexpected status %s", result.Status)
		}
		if pkgerrors.CodeOf(result.Err) != pkgerrors.CodeBackend {
			t.Fatalf("unexpected error %v", result.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("payment result never resolved")
	}

	if cart.clearCalls != 0 {
		t.Fatal("cart must not be cleared on a failed payment")
	}
}

func TestGatewayWaitWindowElapsesToUnknown(t *testing.T) {
	t.Parallel()

	api := &stubBackend{
		confirmation: storeapi.OrderConfirmation{OrderID: "1001"},
		handoff:      storeapi.GatewayHandoff{RedirectURL: "https://pay.example.com/1001"},
		status:       storeapi.PaymentStatusPending,
	}
	store := newPaymentStore(t, api, &stubCart{}, 20*time.Millisecond)
	if err := store.SelectPaymentMethod("online_gateway"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	handoff, err := store.PlaceOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	select {
	case result := <-handoff.Done:
		if result.Status != storeapi.PaymentStatusUnknown {
			t.Fatalf("unexpected status %s", result.Status)
		}
		if pkgerrors.CodeOf(result.Err) != pkgerrors.CodeTimeout {
			t.Fatalf("unexpected error %v", result.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("payment result never resolved")
	}

	if api.statusCalls != 1 {
		t.Fatalf("expected one fallback status poll, got %d", api.statusCalls)
	}
	if store.PaymentStatus() != storeapi.PaymentStatusUnknown {
		t.Fatalf("unexpected store status %s", store.PaymentStatus())
	}
}

func TestGatewayWaitWindowStatusPollFindsPaid(t *testing.T) {
	t.Parallel()

	api := &stubBackend{
		confirmation: storeapi.OrderConfirmation{OrderID: "1001"},
		handoff:      storeapi.GatewayHandoff{RedirectURL: "https://pay.example.com/1001"},
		status:       storeapi.PaymentStatusPaid,
	}
	cart := &stubCart{}
	store := newPaymentStore(t, api, cart, 20*time.Millisecond)
	if err := store.SelectPaymentMethod("online_gateway"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	handoff, err := store.PlaceOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	select {
	case result := <-handoff.Done:
		if result.Err != nil || result.Status != storeapi.PaymentStatusPaid {
			t.Fatalf("unexpected result %+v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("payment result never resolved")
	}

	if cart.clearCalls != 1 {
		t.Fatalf("expected cart cleared, got %d", cart.clearCalls)
	}
}

func TestGatewaySignalForUnknownOrderIsDropped(t *testing.T) {
	t.Parallel()

	api := &stubBackend{}
	store := newTestStore(t, api, &stubCart{})

	// must not panic or block
	store.HandleGatewaySignal(gateway.Signal{OrderID: "nope", Success: true})
}

func TestGatewayHandoffFailureReturnsError(t *testing.T) {
	t.Parallel()

	api := &stubBackend{
		confirmation: storeapi.OrderConfirmation{OrderID: "1001"},
		handoffErr:   pkgerrors.New(pkgerrors.CodeNetwork, "dial tcp"),
	}
	store := newPaymentStore(t, api, &stubCart{}, time.Minute)
	if err := store.SelectPaymentMethod("online_gateway"); err != nil {
		t.Fatalf("select payment: %v", err)
	}

	if _, err := store.PlaceOrder(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if store.PaymentStatus() != storeapi.PaymentStatusPending {
		t.Fatalf("unexpected status %s", store.PaymentStatus())
	}
}
