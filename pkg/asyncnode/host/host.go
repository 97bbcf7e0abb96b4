// Package host defines the collaborator interfaces the component runtime
// consumes from a node-canvas host application: the per-solve data access
// handle, the UI-thread dispatcher, the settings provider, and the key-value
// chunk abstraction used for document persistence.
//
// The runtime never assumes a concrete host. Everything here is an injected
// capability; the in-memory implementations in this package exist for tests,
// examples, and headless use.
package host

import "time"

// Item is a single data value carried on a branch of a data tree.
// The runtime supports a closed set of item kinds: bool, int64, float64,
// string and []byte. Hosts are expected to coerce their native types into
// one of these before handing data to the runtime.
type Item any

// Branch is one path of a data tree with its ordered items.
type Branch struct {
	// Path is the structural address of the branch (e.g. "{0;1}").
	// Two branches with equal items but different paths are distinct.
	Path string

	// Items are the values stored on this branch, in order.
	Items []Item
}

// Tree is the host's data-tree shape: an ordered list of branches.
// Trees are value types; the runtime never mutates a tree it is handed.
type Tree struct {
	Branches []Branch
}

// ItemCount returns the total number of items across all branches.
func (t Tree) ItemCount() int {
	n := 0
	for _, b := range t.Branches {
		n += len(b.Items)
	}
	return n
}

// FlatTree builds a single-branch tree from a list of items.
// Convenience for hosts that only deal in flat lists.
func FlatTree(items ...Item) Tree {
	return Tree{Branches: []Branch{{Path: "{0}", Items: items}}}
}

// DataAccess is the host's per-solve data handle. It is thread-affine:
// valid only on the calling (host) thread and only for the duration of a
// single solve call. Workers copy everything they need out of it during
// input gathering and must never retain a reference past that call.
type DataAccess interface {
	// GetData returns the first item of the named input, or false if the
	// input is unset.
	GetData(name string) (Item, bool)

	// GetTree returns the full data tree of the named input, or false if
	// the input is unset.
	GetTree(name string) (Tree, bool)

	// SetData writes a single item to the indexed output parameter.
	SetData(index int, v Item) error

	// SetDataList writes a flat list to the indexed output parameter.
	SetDataList(index int, items []Item) error

	// SetDataTree writes a full tree to the indexed output parameter.
	SetDataTree(index int, t Tree) error
}

// Dispatcher marshals callbacks onto the host's UI thread. Every callback
// that touches host-visible state (expiring a solution, writing outputs,
// diagnostics) from a background continuation must go through it.
type Dispatcher interface {
	// Invoke schedules fn on the UI thread. It never blocks the caller.
	Invoke(fn func())
}

// Settings exposes host-level configuration to the runtime. DebounceTime
// is read fresh on every debounce arm so the user can change it without
// reloading the document.
type Settings interface {
	DebounceTime() time.Duration
}

// StaticSettings is a Settings implementation with a fixed debounce time.
type StaticSettings struct {
	Debounce time.Duration
}

// DebounceTime implements Settings.
func (s StaticSettings) DebounceTime() time.Duration {
	return s.Debounce
}

// ChunkWriter is the host's generic key-value document writer. The runtime
// persists input fingerprints and output blobs through it at document save.
type ChunkWriter interface {
	SetInt32(key string, v int32)
	SetBytes(key string, b []byte)
}

// ChunkReader is the read side of the chunk abstraction, used at document
// load. Missing keys report false rather than erroring.
type ChunkReader interface {
	Int32(key string) (int32, bool)
	Bytes(key string) ([]byte, bool)
	// Keys returns every key present in the chunk. Used to discover
	// per-parameter entries without knowing parameter names up front.
	Keys() []string
}
