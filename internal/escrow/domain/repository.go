package escrow

import "context"

// Repository persists escrow accounts. Save inserts new accounts and updates
// existing ones only when the stored version matches the loaded one; a
// mismatch returns an error wrapping kernel.ErrResourceContention. Pending
// entries are appended in the same transaction.
type Repository interface {
	Save(ctx context.Context, account *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetBySubOrder(ctx context.Context, subOrderID string) (*Account, error)
}
