package storeapi

import (
	"context"
	"net/http"
	"net/url"
)

// SetShippingAddress commits an existing account address as the shipping
// address for the current checkout.
func (c *Client) SetShippingAddress(ctx context.Context, addressID string) error {
	form := url.Values{}
	form.Set("address_id", addressID)
	return c.do(ctx, http.MethodPost, "checkout_address", "checkout/shipping-address", form, nil)
}

// GetCheckoutMethods lists the payment and shipping methods available for the
// committed shipping address.
func (c *Client) GetCheckoutMethods(ctx context.Context) (CheckoutMethods, error) {
	var methods CheckoutMethods
	if err := c.do(ctx, http.MethodGet, "checkout_methods", "checkout/methods", nil, &methods); err != nil {
		return CheckoutMethods{}, err
	}
	return methods, nil
}

// GetTimeSlots lists delivery slots for a date formatted as dd-mm-yyyy. An
// empty list is a valid response.
func (c *Client) GetTimeSlots(ctx context.Context, date string) ([]TimeSlot, error) {
	var slots []TimeSlot
	path := "checkout/time-slots?date=" + url.QueryEscape(date)
	if err := c.do(ctx, http.MethodGet, "checkout_time_slots", path, nil, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// SetDeliverySlot commits the delivery date and time slot.
func (c *Client) SetDeliverySlot(ctx context.Context, date, timeSlotID string) error {
	form := url.Values{}
	form.Set("date", date)
	form.Set("time_slot_id", timeSlotID)
	return c.do(ctx, http.MethodPost, "checkout_delivery", "checkout/delivery", form, nil)
}

// ApplyCoupon validates a coupon code server-side.
func (c *Client) ApplyCoupon(ctx context.Context, code string) (CouponResult, error) {
	form := url.Values{}
	form.Set("coupon", code)

	var result CouponResult
	if err := c.do(ctx, http.MethodPost, "coupon_apply", "checkout/coupon", form, &result); err != nil {
		return CouponResult{}, err
	}
	return result, nil
}

// RemoveCoupon clears the applied coupon.
func (c *Client) RemoveCoupon(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "coupon_remove", "checkout/coupon", nil, nil)
}

// SetPaymentAndShipping commits the selected payment and shipping methods
// with an optional free-text comment. This is phase (a) of order placement.
func (c *Client) SetPaymentAndShipping(ctx context.Context, paymentCode, shippingCode, comment string) error {
	form := url.Values{}
	form.Set("payment_method", paymentCode)
	form.Set("shipping_method", shippingCode)
	if comment != "" {
		form.Set("comment", comment)
	}
	return c.do(ctx, http.MethodPost, "checkout_confirm_methods", "checkout/confirm-methods", form, nil)
}

// ConfirmOrder creates the order from the committed checkout state. This is
// phase (b); it is only valid after SetPaymentAndShipping succeeded.
func (c *Client) ConfirmOrder(ctx context.Context) (OrderConfirmation, error) {
	var confirmation OrderConfirmation
	if err := c.do(ctx, http.MethodPost, "order_confirm", "order/confirm", nil, &confirmation); err != nil {
		return OrderConfirmation{}, err
	}
	return confirmation, nil
}

// ConfirmPayment marks the order's payment as completed.
func (c *Client) ConfirmPayment(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPost, "payment_confirm", "order/"+url.PathEscape(orderID)+"/payment/confirm", nil, nil)
}

// GetPaymentStatus polls the payment state of an order.
func (c *Client) GetPaymentStatus(ctx context.Context, orderID string) (PaymentStatus, error) {
	var payload struct {
		Status PaymentStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "payment_status", "order/"+url.PathEscape(orderID)+"/payment/status", nil, &payload); err != nil {
		return "", err
	}
	return payload.Status, nil
}

// CreateGatewayHandoff obtains the out-of-band payment surface URL for an
// online gateway method.
func (c *Client) CreateGatewayHandoff(ctx context.Context, orderID string) (GatewayHandoff, error) {
	var handoff GatewayHandoff
	if err := c.do(ctx, http.MethodPost, "gateway_handoff", "order/"+url.PathEscape(orderID)+"/gateway", nil, &handoff); err != nil {
		return GatewayHandoff{}, err
	}
	return handoff, nil
}
