// Package optimistic generalizes the snapshot / speculative-apply / rollback
// pattern shared by the synced stores, and provides the generation tokens
// that keep an out-of-order slow response from clobbering a newer one.
package optimistic

import "context"

// Tx is one optimistic store mutation. Begin runs under the store lock: it
// snapshots state, applies the speculative change, and returns the mutation's
// generation token. Commit adopts server truth and Rollback restores the
// snapshot; both receive the token and must ignore it when it is no longer
// the store's current generation.
type Tx struct {
	Begin    func() uint64
	Call     func(ctx context.Context) error
	Commit   func(gen uint64)
	Rollback func(gen uint64)
}

// Run executes the transaction: on a rejected server call the snapshot is
// restored and the error returned; on success server truth is adopted.
func Run(ctx context.Context, tx Tx) error {
	gen := tx.Begin()
	if err := tx.Call(ctx); err != nil {
		if tx.Rollback != nil {
			tx.Rollback(gen)
		}
		return err
	}
	if tx.Commit != nil {
		tx.Commit(gen)
	}
	return nil
}
