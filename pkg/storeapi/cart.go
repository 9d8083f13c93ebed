package storeapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// GetCart fetches the authoritative server cart.
func (c *Client) GetCart(ctx context.Context) (Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, "cart_get", "cart", nil, &cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// AddCartItem adds a product and returns the updated cart.
func (c *Client) AddCartItem(ctx context.Context, productID string, quantity int) (Cart, error) {
	form := url.Values{}
	form.Set("product_id", productID)
	form.Set("quantity", strconv.Itoa(quantity))

	var cart Cart
	if err := c.do(ctx, http.MethodPost, "cart_add", "cart", form, &cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// UpdateCartItem changes the quantity of an existing line and returns the
// updated cart.
func (c *Client) UpdateCartItem(ctx context.Context, key string, quantity int) (Cart, error) {
	form := url.Values{}
	form.Set("key", key)
	form.Set("quantity", strconv.Itoa(quantity))

	var cart Cart
	if err := c.do(ctx, http.MethodPut, "cart_update", "cart", form, &cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// RemoveCartItem deletes one line and returns the updated cart.
func (c *Client) RemoveCartItem(ctx context.Context, key string) (Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodDelete, "cart_remove", "cart/"+url.PathEscape(key), nil, &cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// EmptyCart removes every line from the server cart.
func (c *Client) EmptyCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "cart_empty", "cart", nil, nil)
}
