package checkout

import (
	"context"
	"testing"

	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

type stubBackend struct {
	methods         storeapi.CheckoutMethods
	slots           []storeapi.TimeSlot
	slotsByDate     map[string][]storeapi.TimeSlot
	coupon          storeapi.CouponResult
	confirmation    storeapi.OrderConfirmation
	handoff         storeapi.GatewayHandoff
	status          storeapi.PaymentStatus
	addressErr      error
	methodsErr      error
	slotsErr        error
	deliveryErr     error
	couponErr       error
	setPaymentErr   error
	confirmOrderErr error
	confirmPayErr   error
	statusErr       error
	handoffErr      error

	addressCalls    int
	methodsCalls    int
	setPaymentCalls int
	confirmCalls    int
	confirmPayCalls int
	statusCalls     int
	lastAddress     string
	lastDate        string
	lastSlot        string
	lastPayment     string
	lastShipping    string
	lastComment     string
}

func (b *stubBackend) SetShippingAddress(ctx context.Context, addressID string) error {
	b.addressCalls++
	b.lastAddress = addressID
	return b.addressErr
}

func (b *stubBackend) GetCheckoutMethods(ctx context.Context) (storeapi.CheckoutMethods, error) {
	b.methodsCalls++
	return b.methods, b.methodsErr
}

func (b *stubBackend) GetTimeSlots(ctx context.Context, date string) ([]storeapi.TimeSlot, error) {
	if b.slotsByDate != nil {
		return b.slotsByDate[date], b.slotsErr
	}
	return b.slots, b.slotsErr
}

func (b *stubBackend) SetDeliverySlot(ctx context.Context, date, timeSlotID string) error {
	b.lastDate, b.lastSlot = date, timeSlotID
	return b.deliveryErr
}

func (b *stubBackend) ApplyCoupon(ctx context.Context, code string) (storeapi.CouponResult, error) {
	return b.coupon, b.couponErr
}

func (b *stubBackend) RemoveCoupon(ctx context.Context) error {
	return nil
}

func (b *stubBackend) SetPaymentAndShipping(ctx context.Context, paymentCode, shippingCode, comment string) error {
	b.setPaymentCalls++
	b.lastPayment, b.lastShipping, b.lastComment = paymentCode, shippingCode, comment
	return b.setPaymentErr
}

func (b *stubBackend) ConfirmOrder(ctx context.Context) (storeapi.OrderConfirmation, error) {
	b.confirmCalls++
	return b.confirmation, b.confirmOrderErr
}

func (b *stubBackend) ConfirmPayment(ctx context.Context, orderID string) error {
	b.confirmPayCalls++
	return b.confirmPayErr
}

func (b *stubBackend) GetPaymentStatus(ctx context.Context, orderID string) (storeapi.PaymentStatus, error) {
	b.statusCalls++
	return b.status, b.statusErr
}

func (b *stubBackend) CreateGatewayHandoff(ctx context.Context, orderID string) (storeapi.GatewayHandoff, error) {
	return b.handoff, b.handoffErr
}

type stubCart struct {
	clearCalls int
	clearErr   error
}

func (c *stubCart) Clear(ctx context.Context) error {
	c.clearCalls++
	return c.clearErr
}

func defaultMethods() storeapi.CheckoutMethods {
	return storeapi.CheckoutMethods{
		ShippingMethods: []storeapi.ShippingMethod{{Code: "flat", Title: "Flat Rate"}},
		PaymentMethods: []storeapi.PaymentMethod{
			{Code: "cod", Title: "Cash On Delivery"},
			{Code: "online_gateway", Title: "Pay Online"},
			{Code: "crypto", Title: "Crypto"},
		},
	}
}

func newTestStore(t *testing.T, api *stubBackend, cart *stubCart) *Store {
	t.Helper()
	store, err := NewStore(StoreParams{
		API:    api,
		Cart:   cart,
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

// advanceToPayment walks a store through address and delivery so payment-step
// tests start from a valid position.
func advanceToPayment(t *testing.T, store *Store, api *stubBackend) {
	t.Helper()
	ctx := context.Background()

	api.methods = defaultMethods()
	api.slots = []storeapi.TimeSlot{{ID: "slot_1", Label: "10:00 - 12:00"}}

	if err := store.SelectAddress(ctx, "addr_1"); err != nil {
		t.Fatalf("select address: %v", err)
	}
	if err := store.FetchTimeSlots(ctx, "24-12-2026"); err != nil {
		t.Fatalf("fetch slots: %v", err)
	}
	if err := store.SelectTimeSlot("slot_1"); err != nil {
		t.Fatalf("select slot: %v", err)
	}
	if err := store.ConfirmDelivery(ctx); err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if err := store.SelectShippingMethod("flat"); err != nil {
		t.Fatalf("select shipping: %v", err)
	}
}

func TestSelectAddressAdvancesToDelivery(t *testing.T) {
	t.Parallel()

	api := &stubBackend{methods: defaultMethods()}
	store := newTestStore(t, api, &stubCart{})

	if store.Step() != StepAddress {
		t.Fatalf("expected initial step 1, got %d", store.Step())
	}
	if err := store.SelectAddress(context.Background(), "addr_1"); err != nil {
		t.Fatalf("select address: %v", err)
	}
	if store.Step() != StepDelivery {
		t.Fatalf("expected step 2, got %d", store.Step())
	}
	if len(store.Methods().PaymentMethods) != 3 {
		t.Fatalf("expected methods cached, got %+v", store.Methods())
	}
}

func TestSelectAddressFailureStaysAtStepOne(t *testing.T) {
	t.Parallel()

	api := &stubBackend{addressErr: pkgerrors.New(pkgerrors.CodeBackend, "Invalid address.")}
	store := newTestStore(t, api, &stubCart{})

	if err := store.SelectAddress(context.Background(), "addr_1"); err == nil {
		t.Fatal("expected error")
	}
	if store.Step() != StepAddress {
		t.Fatalf("expected step 1, got %d", store.Step())
	}
	if api.methodsCalls != 0 {
		t.Fatal("methods fetch must not run after a failed address commit")
	}
}

func TestSelectAddressMethodsFailureStaysAtStepOne(t *testing.T) {
	t.Parallel()

	api := &stubBackend{methodsErr: pkgerrors.New(pkgerrors.CodeNetwork, "dial tcp")}
	store := newTestStore(t, api, &stubCart{})

	if err := store.SelectAddress(context.Background(), "addr_1"); err == nil {
		t.Fatal("expected error")
	}
	if store.Step() != StepAddress {
		t.Fatalf("expected step 1, got %d", store.Step())
	}
	if api.addressCalls != 1 {
		t.Fatalf("expected address committed first, got %d calls", api.addressCalls)
	}
}

func TestFetchTimeSlotsClearsPreviousSelection(t *testing.T) {
	t.Parallel()

	api := &stubBackend{slotsByDate: map[string][]storeapi.TimeSlot{
		"24-12-2026": {{ID: "slot_1", Label: "morning"}},
		"25-12-2026": {{ID: "slot_9", Label: "evening"}},
	}}
	store := newTestStore(t, api, &stubCart{})
	ctx := context.Background()

	if err := store.FetchTimeSlots(ctx, "24-12-2026"); err != nil {
		t.Fatalf("fetch slots: %v", err)
	}
	if err := store.SelectTimeSlot("slot_1"); err != nil {
		t.Fatalf("select slot: %v", err)
	}

	if err := store.FetchTimeSlots(ctx, "25-12-2026"); err != nil {
		t.Fatalf("fetch slots: %v", err)
	}

	// the old date's slot must no longer be selectable
	if err := store.SelectTimeSlot("slot_1"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := store.SelectTimeSlot("slot_9"); err != nil {
		t.Fatalf("select slot: %v", err)
	}
}

func TestFetchTimeSlotsEmptyResponseIsValid(t *testing.T) {
	t.Parallel()

	api := &stubBackend{}
	store := newTestStore(t, api, &stubCart{})

	if err := store.FetchTimeSlots(context.Background(), "24-12-2026"); err != nil {
		t.Fatalf("fetch slots: %v", err)
	}
	if len(store.TimeSlots()) != 0 {
		t.Fatalf("expected empty slot list, got %+v", store.TimeSlots())
	}
}

func TestConfirmDeliveryRequiresDateAndSlot(t *testing.T) {
	t.Parallel()

	api := &stubBackend{slots: []storeapi.TimeSlot{{ID: "slot_1"}}}
	store := newTestStore(t, api, &stubCart{})
	ctx := context.Background()

	if err := store.ConfirmDelivery(ctx); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error without date, got %v", err)
	}

	if err := store.FetchTimeSlots(ctx, "24-12-2026"); err != nil {
		t.Fatalf("fetch slots: %v", err)
	}
	if err := store.ConfirmDelivery(ctx); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error without slot, got %v", err)
	}

	if err := store.SelectTimeSlot("slot_1"); err != nil {
		t.Fatalf("select slot: %v", err)
	}
	if err := store.ConfirmDelivery(ctx); err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if api.lastDate != "24-12-2026" || api.lastSlot != "slot_1" {
		t.Fatalf("unexpected delivery commit %q %q", api.lastDate, api.lastSlot)
	}
	if store.Step() != StepPayment {
		t.Fatalf("expected step 3, got %d", store.Step())
	}
}

func TestSelectMethodsValidateAgainstFetchedLists(t *testing.T) {
	t.Parallel()

	api := &stubBackend{methods: defaultMethods()}
	store := newTestStore(t, api, &stubCart{})

	if err := store.SelectShippingMethod("flat"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error before methods fetch, got %v", err)
	}

	if err := store.SelectAddress(context.Background(), "addr_1"); err != nil {
		t.Fatalf("select address: %v", err)
	}
	if err := store.SelectShippingMethod("flat"); err != nil {
		t.Fatalf("select shipping: %v", err)
	}
	if err := store.SelectPaymentMethod("nonexistent"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyCouponFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	api := &stubBackend{coupon: storeapi.CouponResult{Code: "SAVE10"}}
	store := newTestStore(t, api, &stubCart{})
	ctx := context.Background()

	if err := store.ApplyCoupon(ctx, "SAVE10"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	if store.CouponCode() != "SAVE10" {
		t.Fatalf("unexpected coupon %q", store.CouponCode())
	}

	api.couponErr = pkgerrors.New(pkgerrors.CodeBackend, "Coupon is invalid.")
	if err := store.ApplyCoupon(ctx, "BOGUS"); err == nil {
		t.Fatal("expected error")
	}
	if store.CouponCode() != "SAVE10" {
		t.Fatalf("rejected coupon must not clobber the applied one, got %q", store.CouponCode())
	}

	api.couponErr = nil
	if err := store.RemoveCoupon(ctx); err != nil {
		t.Fatalf("remove coupon: %v", err)
	}
	if store.CouponCode() != "" {
		t.Fatalf("expected coupon cleared, got %q", store.CouponCode())
	}
}

func TestTerminalSessionRejectsMutations(t *testing.T) {
	t.Parallel()

	api := &stubBackend{confirmation: storeapi.OrderConfirmation{OrderID: "1001"}}
	cart := &stubCart{}
	store := newTestStore(t, api, cart)
	advanceToPayment(t, store, api)

	if err := store.SelectPaymentMethod("cod"); err != nil {
		t.Fatalf("select payment: %v", err)
	}
	if _, err := store.PlaceOrder(context.Background(), ""); err != nil {
		t.Fatalf("place order: %v", err)
	}

	if err := store.SelectAddress(context.Background(), "addr_2"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected terminal rejection, got %v", err)
	}
	if err := store.ApplyCoupon(context.Background(), "SAVE10"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected terminal rejection, got %v", err)
	}
}
