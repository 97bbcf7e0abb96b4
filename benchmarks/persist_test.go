package benchmarks

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
	"github.com/halverson/asyncnode/pkg/asyncnode/persist"
)

func buildOutputSet(n int) persist.OutputSet {
	set := make(persist.OutputSet, n)
	for i := 0; i < n; i++ {
		set[uuid.New()] = persist.TextValue(fmt.Sprintf("output value %d", i))
	}
	return set
}

// BenchmarkEncode measures output-set serialization at document save.
func BenchmarkEncode(b *testing.B) {
	set := buildOutputSet(4)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := persist.Encode(set); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecode measures output-set parsing at document load.
func BenchmarkDecode(b *testing.B) {
	data, err := persist.Encode(buildOutputSet(4))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := persist.Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEncode_Tree measures serializing a tree-valued output.
func BenchmarkEncode_Tree(b *testing.B) {
	tree := host.Tree{}
	for i := 0; i < 10; i++ {
		tree.Branches = append(tree.Branches, host.Branch{
			Path:  fmt.Sprintf("{0;%d}", i),
			Items: []host.Item{"a", int64(1), 2.5},
		})
	}
	set := persist.OutputSet{uuid.New(): persist.TreeValue(tree)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := persist.Encode(set); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryStore_Save measures the sidecar store hot path.
func BenchmarkMemoryStore_Save(b *testing.B) {
	store := persist.NewMemoryStore()
	defer store.Close()

	data, err := persist.Encode(buildOutputSet(4))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.Save("node", data); err != nil {
			b.Fatal(err)
		}
	}
}
