package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nmoraleda/storefront/internal/checkout/gateway"
	"github.com/nmoraleda/storefront/pkg/config"
	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/metrics"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

const storeName = "checkout"

// Step is the checkout position. The flow is strictly linear and forward-only;
// revisiting a prior step's UI does not reset later-step state.
type Step int

const (
	StepAddress Step = iota + 1
	StepDelivery
	StepPayment
)

type backend interface {
	SetShippingAddress(ctx context.Context, addressID string) error
	GetCheckoutMethods(ctx context.Context) (storeapi.CheckoutMethods, error)
	GetTimeSlots(ctx context.Context, date string) ([]storeapi.TimeSlot, error)
	SetDeliverySlot(ctx context.Context, date, timeSlotID string) error
	ApplyCoupon(ctx context.Context, code string) (storeapi.CouponResult, error)
	RemoveCoupon(ctx context.Context) error
	SetPaymentAndShipping(ctx context.Context, paymentCode, shippingCode, comment string) error
	ConfirmOrder(ctx context.Context) (storeapi.OrderConfirmation, error)
	ConfirmPayment(ctx context.Context, orderID string) error
	GetPaymentStatus(ctx context.Context, orderID string) (storeapi.PaymentStatus, error)
	CreateGatewayHandoff(ctx context.Context, orderID string) (storeapi.GatewayHandoff, error)
}

// cartClearer is the cart store's public clear action, composed in by the
// application layer.
type cartClearer interface {
	Clear(ctx context.Context) error
}

// StoreParams groups dependencies for the checkout store.
type StoreParams struct {
	API     backend
	Cart    cartClearer
	Logger  *logger.Logger
	Metrics *metrics.StoreMetrics
	Payment config.PaymentConfig
}

// Store is the checkout session state machine: address, delivery window,
// payment. Every step transition is gated on a successful server
// acknowledgment. The session is transient and never persisted.
type Store struct {
	api        backend
	cart       cartClearer
	logger     *logger.Logger
	metrics    *metrics.StoreMetrics
	waitWindow time.Duration

	mu               sync.Mutex
	step             Step
	selectedAddress  string
	shippingMethods  []storeapi.ShippingMethod
	paymentMethods   []storeapi.PaymentMethod
	selectedShipping *storeapi.ShippingMethod
	selectedPayment  *storeapi.PaymentMethod
	selectedDate     string
	selectedSlot     *storeapi.TimeSlot
	timeSlots        []storeapi.TimeSlot
	couponCode       string
	orderID          string
	paymentStatus    storeapi.PaymentStatus

	waiters map[string]chan gateway.Signal
}

func NewStore(params StoreParams) (*Store, error) {
	if params.API == nil {
		return nil, errors.New("checkout backend is required")
	}
	if params.Cart == nil {
		return nil, errors.New("checkout cart clearer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("checkout logger is required")
	}
	waitWindow := params.Payment.WaitWindow
	if waitWindow <= 0 {
		waitWindow = 15 * time.Minute
	}
	return &Store{
		api:        params.API,
		cart:       params.Cart,
		logger:     params.Logger,
		metrics:    params.Metrics,
		waitWindow: waitWindow,
		step:       StepAddress,
		waiters:    map[string]chan gateway.Signal{},
	}, nil
}

func (s *Store) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Store) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

func (s *Store) PaymentStatus() storeapi.PaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentStatus
}

func (s *Store) CouponCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.couponCode
}

func (s *Store) TimeSlots() []storeapi.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeapi.TimeSlot(nil), s.timeSlots...)
}

func (s *Store) Methods() storeapi.CheckoutMethods {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeapi.CheckoutMethods{
		ShippingMethods: append([]storeapi.ShippingMethod(nil), s.shippingMethods...),
		PaymentMethods:  append([]storeapi.PaymentMethod(nil), s.paymentMethods...),
	}
}

func (s *Store) SelectedShipping() *storeapi.ShippingMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedShipping
}

func (s *Store) SelectedPayment() *storeapi.PaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedPayment
}

// SelectAddress commits the shipping address (step 1 -> 2). The two server
// calls are sequential; the methods fetch is only attempted after the address
// commit succeeds, and any failure leaves the machine at step 1.
func (s *Store) SelectAddress(ctx context.Context, addressID string) error {
	if addressID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	if err := s.ensureNotTerminal(); err != nil {
		return err
	}

	if err := s.api.SetShippingAddress(ctx, addressID); err != nil {
		return err
	}
	methods, err := s.api.GetCheckoutMethods(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.selectedAddress = addressID
	s.shippingMethods = methods.ShippingMethods
	s.paymentMethods = methods.PaymentMethods
	s.step = StepDelivery
	s.mu.Unlock()

	s.metrics.IncMutation(storeName, "select_address")
	return nil
}

// FetchTimeSlots loads delivery slots for a date (dd-mm-yyyy). The previous
// slot list and selection are cleared before the request resolves, so a slot
// from another date is never selectable. An empty response is a valid,
// non-error outcome.
func (s *Store) FetchTimeSlots(ctx context.Context, date string) error {
	if date == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "date is required")
	}
	if err := s.ensureNotTerminal(); err != nil {
		return err
	}

	s.mu.Lock()
	s.selectedDate = date
	s.timeSlots = nil
	s.selectedSlot = nil
	s.mu.Unlock()

	slots, err := s.api.GetTimeSlots(ctx, date)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.selectedDate == date {
		s.timeSlots = slots
	}
	s.mu.Unlock()
	return nil
}

// SelectTimeSlot picks a slot from the fetched list.
func (s *Store) SelectTimeSlot(slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.timeSlots {
		if s.timeSlots[i].ID == slotID {
			slot := s.timeSlots[i]
			s.selectedSlot = &slot
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "time slot not available for the selected date")
}

// ConfirmDelivery commits the delivery window (step 2 -> 3). Both a date and
// a time slot must be selected before any network call is made.
func (s *Store) ConfirmDelivery(ctx context.Context) error {
	if err := s.ensureNotTerminal(); err != nil {
		return err
	}

	s.mu.Lock()
	date, slot := s.selectedDate, s.selectedSlot
	s.mu.Unlock()
	if date == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery date is required")
	}
	if slot == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "time slot is required")
	}

	if err := s.api.SetDeliverySlot(ctx, date, slot.ID); err != nil {
		return err
	}

	s.mu.Lock()
	s.step = StepPayment
	s.mu.Unlock()

	s.metrics.IncMutation(storeName, "confirm_delivery")
	return nil
}

// SelectShippingMethod picks a shipping method from the fetched list.
func (s *Store) SelectShippingMethod(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.shippingMethods {
		if s.shippingMethods[i].Code == code {
			method := s.shippingMethods[i]
			s.selectedShipping = &method
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "shipping method not available")
}

// SelectPaymentMethod picks a payment method from the fetched list.
func (s *Store) SelectPaymentMethod(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.paymentMethods {
		if s.paymentMethods[i].Code == code {
			method := s.paymentMethods[i]
			s.selectedPayment = &method
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "payment method not available")
}

// ApplyCoupon submits a code for server-side validation. A rejected code
// leaves the applied-coupon state untouched.
func (s *Store) ApplyCoupon(ctx context.Context, code string) error {
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if err := s.ensureNotTerminal(); err != nil {
		return err
	}

	result, err := s.api.ApplyCoupon(ctx, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.couponCode = result.Code
	if s.couponCode == "" {
		s.couponCode = code
	}
	s.mu.Unlock()

	s.metrics.IncMutation(storeName, "apply_coupon")
	return nil
}

// RemoveCoupon clears the applied coupon.
func (s *Store) RemoveCoupon(ctx context.Context) error {
	if err := s.ensureNotTerminal(); err != nil {
		return err
	}
	if err := s.api.RemoveCoupon(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.couponCode = ""
	s.mu.Unlock()
	return nil
}

// ensureNotTerminal rejects mutations after the order id has been assigned;
// a completed session is terminal and a new checkout starts fresh.
func (s *Store) ensureNotTerminal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderID != "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout already completed, start a new session")
	}
	return nil
}
