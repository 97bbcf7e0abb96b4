package persist

import "errors"

// Store persists encoded output sets by node instance ID, outside the
// host document. Hosts that embed outputs directly in the document chunk
// do not need a Store; it exists for sidecar persistence (large outputs,
// shared caches). Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the encoded output set for a node, overwriting any
	// previous entry.
	Save(nodeID string, data []byte) error

	// Load retrieves the encoded output set for a node.
	// Returns ErrNotFound if none was saved.
	Load(nodeID string) ([]byte, error)

	// Delete removes a node's entry. Deleting an absent node is not an
	// error.
	Delete(nodeID string) error

	// Close releases any resources.
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no outputs were saved for the node.
	ErrNotFound = errors.New("outputs not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("output store closed")
)
