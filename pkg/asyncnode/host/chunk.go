package host

import "sort"

// MemoryChunk is an in-memory ChunkWriter/ChunkReader for tests and for
// hosts that snapshot documents themselves. The zero value is not usable;
// call NewMemoryChunk.
type MemoryChunk struct {
	ints  map[string]int32
	blobs map[string][]byte
}

// NewMemoryChunk creates an empty chunk.
func NewMemoryChunk() *MemoryChunk {
	return &MemoryChunk{
		ints:  make(map[string]int32),
		blobs: make(map[string][]byte),
	}
}

// SetInt32 implements ChunkWriter.
func (c *MemoryChunk) SetInt32(key string, v int32) {
	c.ints[key] = v
}

// SetBytes implements ChunkWriter. The slice is copied.
func (c *MemoryChunk) SetBytes(key string, b []byte) {
	stored := make([]byte, len(b))
	copy(stored, b)
	c.blobs[key] = stored
}

// Int32 implements ChunkReader.
func (c *MemoryChunk) Int32(key string) (int32, bool) {
	v, ok := c.ints[key]
	return v, ok
}

// Bytes implements ChunkReader. The returned slice is a copy.
func (c *MemoryChunk) Bytes(key string) ([]byte, bool) {
	b, ok := c.blobs[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

// Keys implements ChunkReader. Keys are returned sorted for determinism.
func (c *MemoryChunk) Keys() []string {
	keys := make([]string, 0, len(c.ints)+len(c.blobs))
	for k := range c.ints {
		keys = append(keys, k)
	}
	for k := range c.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
