package host

import "fmt"

// MemoryAccess is an in-memory DataAccess for tests and headless hosts.
// Inputs are named trees; outputs are indexed slots sized at construction.
type MemoryAccess struct {
	inputs  map[string]Tree
	outputs []Tree
}

// NewMemoryAccess creates an access handle with the given number of
// output slots.
func NewMemoryAccess(outputCount int) *MemoryAccess {
	return &MemoryAccess{
		inputs:  make(map[string]Tree),
		outputs: make([]Tree, outputCount),
	}
}

// SetInput assigns an input tree by name.
func (a *MemoryAccess) SetInput(name string, t Tree) {
	a.inputs[name] = t
}

// SetInputItem assigns a single-item input by name.
func (a *MemoryAccess) SetInputItem(name string, v Item) {
	a.inputs[name] = FlatTree(v)
}

// Output returns the tree written to an output slot.
func (a *MemoryAccess) Output(index int) Tree {
	return a.outputs[index]
}

// GetData implements DataAccess.
func (a *MemoryAccess) GetData(name string) (Item, bool) {
	t, ok := a.inputs[name]
	if !ok {
		return nil, false
	}
	for _, b := range t.Branches {
		if len(b.Items) > 0 {
			return b.Items[0], true
		}
	}
	return nil, false
}

// GetTree implements DataAccess.
func (a *MemoryAccess) GetTree(name string) (Tree, bool) {
	t, ok := a.inputs[name]
	return t, ok
}

// SetData implements DataAccess.
func (a *MemoryAccess) SetData(index int, v Item) error {
	return a.SetDataTree(index, FlatTree(v))
}

// SetDataList implements DataAccess.
func (a *MemoryAccess) SetDataList(index int, items []Item) error {
	return a.SetDataTree(index, FlatTree(items...))
}

// SetDataTree implements DataAccess.
func (a *MemoryAccess) SetDataTree(index int, t Tree) error {
	if index < 0 || index >= len(a.outputs) {
		return fmt.Errorf("output index %d out of range [0,%d)", index, len(a.outputs))
	}
	a.outputs[index] = t
	return nil
}
