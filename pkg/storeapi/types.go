package storeapi

// CartLine is one line of the server cart. Key is backend-assigned and is not
// meaningful across sessions.
type CartLine struct {
	Key       string  `json:"key"`
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Total     float64 `json:"total"`
	Image     string  `json:"image"`
	Model     string  `json:"model,omitempty"`
}

// Cart is the authoritative cart collection returned by every cart endpoint.
type Cart struct {
	Lines  []CartLine `json:"products"`
	Totals []Total    `json:"totals,omitempty"`
}

// Total is a backend-computed money row (subtotal, coupon discount, total).
type Total struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Value Money  `json:"value"`
}

type Product struct {
	ID          string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       Money  `json:"price"`
	Image       string `json:"image"`
	Model       string `json:"model,omitempty"`
	InStock     bool   `json:"in_stock"`
}

type WishlistItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
	Model     string  `json:"model,omitempty"`
}

type Address struct {
	ID        string `json:"address_id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	PostCode  string `json:"postcode"`
	Country   string `json:"country"`
	Zone      string `json:"zone,omitempty"`
}

type ShippingMethod struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Cost  Money  `json:"cost"`
}

type PaymentMethod struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// CheckoutMethods is the combined listing fetched after the shipping address
// is committed.
type CheckoutMethods struct {
	ShippingMethods []ShippingMethod `json:"shipping_methods"`
	PaymentMethods  []PaymentMethod  `json:"payment_methods"`
}

type TimeSlot struct {
	ID    string `json:"time_slot_id"`
	Label string `json:"label"`
}

type OrderConfirmation struct {
	OrderID string  `json:"order_id"`
	Totals  []Total `json:"totals,omitempty"`
}

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusFailed  PaymentStatus = "failed"
	// PaymentStatusUnknown marks an online payment whose completion signal
	// never arrived inside the wait window.
	PaymentStatusUnknown PaymentStatus = "unknown"
)

// GatewayHandoff carries the out-of-band payment surface for online gateways.
type GatewayHandoff struct {
	RedirectURL string `json:"redirect_url"`
}

type CouponResult struct {
	Code     string `json:"coupon"`
	Discount Money  `json:"discount"`
}

// LoginResult carries the customer session issued by the backend. Token is a
// JWT whose expiry bounds the authenticated mode client-side.
type LoginResult struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
	Token      string `json:"token"`
}
