// Package hash computes deterministic input fingerprints for change
// detection. A fingerprint is derived from the semantic value of every item
// in a data tree combined with its structural branch path, so it is stable
// across sessions and process restarts (no object identity involved) while
// remaining sensitive to both value edits and branch restructuring.
package hash

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"sort"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
)

// Fingerprint is the change-detection summary of one input parameter.
// Hash covers item values and branch paths; BranchCount covers the tree
// shape. A change to either signals "input changed".
type Fingerprint struct {
	Hash        int32
	BranchCount int32
}

// Tree fingerprints a full data tree.
//
// The hash is FNV-1a over a canonical byte encoding: for each branch, the
// branch path followed by a kind tag and canonical bytes per item. Branch
// order is significant, matching the host's tree ordering semantics.
func Tree(t host.Tree) Fingerprint {
	h := fnv.New32a()
	for _, b := range t.Branches {
		h.Write([]byte(b.Path))
		h.Write([]byte{0})
		for _, item := range b.Items {
			writeItem(h, item)
		}
	}
	// The sum is folded into int32 so it round-trips through the host's
	// int32 chunk values without sign surprises.
	return Fingerprint{
		Hash:        int32(h.Sum32()),
		BranchCount: int32(len(t.Branches)),
	}
}

// Item fingerprints a single value as a one-branch tree.
func Item(v host.Item) Fingerprint {
	return Tree(host.FlatTree(v))
}

func writeItem(w io.Writer, v host.Item) {
	var buf [8]byte
	switch x := v.(type) {
	case nil:
		w.Write([]byte{'n'})
	case bool:
		if x {
			w.Write([]byte{'b', 1})
		} else {
			w.Write([]byte{'b', 0})
		}
	case int:
		w.Write([]byte{'i'})
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(x)))
		w.Write(buf[:])
	case int32:
		w.Write([]byte{'i'})
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(x)))
		w.Write(buf[:])
	case int64:
		w.Write([]byte{'i'})
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
		w.Write(buf[:])
	case float64:
		// Canonicalize -0 so 0.0 and -0.0 fingerprint identically.
		if x == 0 {
			x = 0
		}
		w.Write([]byte{'f'})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		w.Write(buf[:])
	case string:
		w.Write([]byte{'s'})
		binary.LittleEndian.PutUint64(buf[:], uint64(len(x)))
		w.Write(buf[:])
		w.Write([]byte(x))
	case []byte:
		w.Write([]byte{'y'})
		binary.LittleEndian.PutUint64(buf[:], uint64(len(x)))
		w.Write(buf[:])
		w.Write(x)
	default:
		// Unknown kinds fall back to their formatted representation.
		// Deterministic as long as the type's formatting is.
		s := fmt.Sprintf("%T:%v", v, v)
		w.Write([]byte{'?'})
		w.Write([]byte(s))
	}
	w.Write([]byte{0xff})
}

// Changed reports which named fingerprints differ between two sets, in
// sorted name order. Names present in only one set count as changed.
func Changed(pending, committed map[string]Fingerprint) []string {
	var names []string
	for name, p := range pending {
		c, ok := committed[name]
		if !ok || c != p {
			names = append(names, name)
		}
	}
	for name := range committed {
		if _, ok := pending[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
