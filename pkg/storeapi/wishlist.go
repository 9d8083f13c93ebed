package storeapi

import (
	"context"
	"net/http"
	"net/url"
)

// GetWishlist returns the full wishlist records for the logged-in customer.
func (c *Client) GetWishlist(ctx context.Context) ([]WishlistItem, error) {
	var items []WishlistItem
	if err := c.do(ctx, http.MethodGet, "wishlist_get", "wishlist", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddWishlistItem adds one product and returns the updated wishlist.
func (c *Client) AddWishlistItem(ctx context.Context, productID string) ([]WishlistItem, error) {
	form := url.Values{}
	form.Set("product_id", productID)

	var items []WishlistItem
	if err := c.do(ctx, http.MethodPost, "wishlist_add", "wishlist", form, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// RemoveWishlistItem deletes one product and returns the updated wishlist.
func (c *Client) RemoveWishlistItem(ctx context.Context, productID string) ([]WishlistItem, error) {
	var items []WishlistItem
	if err := c.do(ctx, http.MethodDelete, "wishlist_remove", "wishlist/"+url.PathEscape(productID), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SyncWishlist flushes guest-accumulated product IDs into the account
// wishlist in one call. Used once, on the guest-to-authenticated transition.
func (c *Client) SyncWishlist(ctx context.Context, productIDs []string) ([]WishlistItem, error) {
	payload := struct {
		ProductIDs []string `json:"product_ids"`
	}{ProductIDs: productIDs}

	var items []WishlistItem
	if err := c.do(ctx, http.MethodPost, "wishlist_sync", "wishlist/sync", payload, &items); err != nil {
		return nil, err
	}
	return items, nil
}
