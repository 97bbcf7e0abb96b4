package host

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_ItemCount(t *testing.T) {
	assert.Zero(t, Tree{}.ItemCount())

	tree := Tree{Branches: []Branch{
		{Path: "{0}", Items: []Item{"a", "b"}},
		{Path: "{1}", Items: nil},
		{Path: "{2}", Items: []Item{1}},
	}}
	assert.Equal(t, 3, tree.ItemCount())
}

func TestFlatTree(t *testing.T) {
	tree := FlatTree("a", "b")
	require.Len(t, tree.Branches, 1)
	assert.Equal(t, "{0}", tree.Branches[0].Path)
	assert.Equal(t, []Item{"a", "b"}, tree.Branches[0].Items)
}

func TestMemoryAccess(t *testing.T) {
	da := NewMemoryAccess(2)

	_, ok := da.GetData("missing")
	assert.False(t, ok)

	da.SetInputItem("prompt", "hello")
	v, ok := da.GetData("prompt")
	require.True(t, ok)
	assert.Equal(t, Item("hello"), v)

	tree, ok := da.GetTree("prompt")
	require.True(t, ok)
	assert.Equal(t, 1, tree.ItemCount())

	require.NoError(t, da.SetData(0, "out"))
	require.NoError(t, da.SetDataList(1, []Item{1, 2}))
	assert.Equal(t, 1, da.Output(0).ItemCount())
	assert.Equal(t, 2, da.Output(1).ItemCount())

	assert.Error(t, da.SetData(2, "x"), "out-of-range output index")
	assert.Error(t, da.SetData(-1, "x"))
}

func TestMemoryChunk(t *testing.T) {
	c := NewMemoryChunk()

	_, ok := c.Int32("missing")
	assert.False(t, ok)
	_, ok = c.Bytes("missing")
	assert.False(t, ok)

	c.SetInt32("hash", -42)
	v, ok := c.Int32("hash")
	require.True(t, ok)
	assert.Equal(t, int32(-42), v)

	in := []byte("blob")
	c.SetBytes("data", in)
	in[0] = 'X'

	out, ok := c.Bytes("data")
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), out, "chunk must copy stored bytes")

	assert.Equal(t, []string{"data", "hash"}, c.Keys())
}

func TestSerialDispatcher_Ordering(t *testing.T) {
	d := NewSerialDispatcher()
	defer d.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		d.Invoke(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order,
		"callbacks run in submission order")
}

func TestSerialDispatcher_ReentrantInvoke(t *testing.T) {
	d := NewSerialDispatcher()
	defer d.Close()

	// A callback that submits many more callbacks while the loop is
	// busy running it. The loop cannot drain during the submissions, so
	// any fixed-capacity queue would block Invoke here.
	const n = 500
	var ran atomic.Int32
	d.Invoke(func() {
		for i := 0; i < n; i++ {
			d.Invoke(func() { ran.Add(1) })
		}
	})

	require.Eventually(t, func() bool { return ran.Load() == n },
		2*time.Second, time.Millisecond,
		"submissions from inside a callback must all run")
}

func TestSerialDispatcher_CloseDrains(t *testing.T) {
	d := NewSerialDispatcher()

	var ran int
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		d.Invoke(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	d.Close()
	assert.Equal(t, 5, ran, "close waits for queued callbacks")

	// Invoke after close is a silent no-op, not a panic.
	d.Invoke(func() { t.Error("must not run") })
	d.Close() // idempotent
}

func TestStaticSettings(t *testing.T) {
	s := StaticSettings{Debounce: 1500}
	assert.Equal(t, s.Debounce, s.DebounceTime())
}
