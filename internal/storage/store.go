package storage

import "github.com/olehkaliuzhnyi/sword-dapp/pkg/models"

// AccountStore manages the ordered set of accounts the user has authorized.
// The first entry is the active account.
type AccountStore interface {
	// Authorize appends addresses not yet present, keeping existing order.
	// Returns true if the set changed.
	Authorize(addresses ...string) (bool, error)
	// Revoke removes an address. Returns true if it was present.
	Revoke(address string) (bool, error)
	// List returns the authorized addresses in order.
	List() ([]string, error)
}

// TxStore holds in-flight transactions until they reach a terminal stage.
type TxStore interface {
	// Get returns a stored transaction by id, or nil if not found.
	Get(id string) (*models.PendingTransaction, error)
	// Put stores or replaces a transaction keyed by its id.
	Put(tx *models.PendingTransaction) error
	// Delete removes a transaction.
	Delete(id string) error
	// List returns all in-flight transactions.
	List() ([]*models.PendingTransaction, error)
}
