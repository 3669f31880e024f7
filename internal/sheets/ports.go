package sheets

import (
	"context"
)

// Row is one transaction as mirrored to a spreadsheet. Amount is already
// formatted with two decimals.
type Row struct {
	TransactionID int64
	OwnerID       int64
	Date          string
	Type          string
	Amount        string
	CategoryName  string
	Description   string
}

// Ports for outbound adapters.
type (
	// TransactionMirror keeps a copy of the ledger keyed by transaction id.
	// Both operations are idempotent.
	TransactionMirror interface {
		UpsertTransaction(ctx context.Context, r Row) error
		DeleteTransaction(ctx context.Context, id int64) error
	}
)

// Header is the first row written to an empty mirror sheet.
var Header = []string{"ID", "User", "Date", "Type", "Amount", "Category", "Description"}
