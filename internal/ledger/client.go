// Package ledger defines the client contract for the append-only,
// content-addressed remote ledger and provides an HTTP gateway
// implementation of it.
//
// The engine core treats the ledger as an opaque collaborator: submit a
// transaction, fetch its bytes, poll its confirmation status, list the
// transactions a wallet owns, and estimate fees. Consensus and wallet
// cryptography live on the other side of this interface.
package ledger

import "context"

// TxStatus is the confirmation state of a submitted transaction.
type TxStatus int

const (
	// TxPending means the transaction was submitted but has not reached
	// finality yet.
	TxPending TxStatus = iota
	// TxConfirmed means the transaction reached ledger finality.
	TxConfirmed
	// TxFailed means the transaction was rejected or dropped; it will
	// never confirm.
	TxFailed
)

// String returns a human-readable representation of the status.
func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Tag is one name/value pair attached to a transaction. Tags carry the
// file-entity attributes that make records queryable on the ledger.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StatusResult carries a transaction's confirmation state and, once mined,
// the hash of its block.
type StatusResult struct {
	Status    TxStatus
	BlockHash string
}

// BlockEvent announces a newly mined block on the subscription feed.
type BlockEvent struct {
	Height int64  `json:"height"`
	Hash   string `json:"hash"`
}

// Client is the ledger contract consumed by the uploader, confirmation
// poller and downloader. Implementations must be safe for concurrent use.
type Client interface {
	// Submit publishes one transaction of payload bytes with the given
	// tags and returns the assigned transaction id.
	Submit(ctx context.Context, payload []byte, tags []Tag) (string, error)

	// Data fetches the payload bytes of a transaction.
	Data(ctx context.Context, txID string) ([]byte, error)

	// Tags fetches the tags attached to a transaction.
	Tags(ctx context.Context, txID string) ([]Tag, error)

	// Status reports the confirmation state of a transaction.
	Status(ctx context.Context, txID string) (*StatusResult, error)

	// ListByOwnerAndDrive returns the ids of every metadata transaction
	// published by the owner's wallet into the given drive, lazily paging
	// through the gateway's query interface.
	ListByOwnerAndDrive(ctx context.Context, ownerPublicKey, driveID string) ([]string, error)

	// EstimateFee converts a byte size to the ledger's base fee unit.
	EstimateFee(ctx context.Context, byteSize int64) (int64, error)

	// PayFee transfers the given amount of the pricing unit to a recipient.
	PayFee(ctx context.Context, amount float64, recipient string) error

	// SubscribeBlocks opens a feed of newly mined block announcements.
	// The channel closes when ctx is cancelled or the feed drops.
	SubscribeBlocks(ctx context.Context) (<-chan BlockEvent, error)
}
