package ledger

import "context"

type Repository interface {
	// Append inserts e unless an entry with the same transaction id exists,
	// in which case it returns a duplicate_transaction AppError.
	Append(ctx context.Context, e *Entry) error
	// MarkRefunded flips a succeeded entry to refunded. It reports whether
	// an entry with the transaction id exists at all.
	MarkRefunded(ctx context.Context, transactionID string) (found bool, err error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Entry, error)
	ListByUser(ctx context.Context, userID uint) ([]*Entry, error)
}
