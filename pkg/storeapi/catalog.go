package storeapi

import (
	"context"
	"net/http"
	"net/url"
)

// ListProducts fetches the product listing.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.do(ctx, http.MethodGet, "products_list", "products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// SearchProducts runs a free-text product search. Callers cancel superseded
// searches through ctx.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	var products []Product
	path := "products/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, "products_search", path, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// ListAddresses fetches the customer's address book.
func (c *Client) ListAddresses(ctx context.Context) ([]Address, error) {
	var addresses []Address
	if err := c.do(ctx, http.MethodGet, "addresses_list", "account/addresses", nil, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}
