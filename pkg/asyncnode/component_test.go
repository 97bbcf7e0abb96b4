package asyncnode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
	"github.com/halverson/asyncnode/pkg/asyncnode/message"
	"github.com/halverson/asyncnode/pkg/asyncnode/persist"
)

var testOutputGUID = uuid.MustParse("3b9f5a1e-2c4d-4e8f-9a07-d6b1c83e5f20")

// textWorker echoes its prompt input to output slot 0 and persists it.
type textWorker struct {
	comp  *Component
	err   error
	block chan struct{}

	text string
}

func (w *textWorker) GatherInput(da host.DataAccess) (int, error) {
	v, ok := da.GetData("prompt")
	if !ok {
		return 0, errors.New("prompt not set")
	}
	s, _ := v.(string)
	w.text = "echo:" + s
	return 1, nil
}

func (w *textWorker) DoWork(ctx context.Context) error {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return w.err
}

func (w *textWorker) SetOutput(da host.DataAccess) (string, error) {
	if err := da.SetData(0, w.text); err != nil {
		return "", err
	}
	w.comp.StoreOutput(testOutputGUID, persist.TextValue(w.text))
	return "ok", nil
}

// newTextComponent builds a component whose worker is a textWorker.
// configure, if non-nil, adjusts each fresh worker before launch.
func newTextComponent(t *testing.T, configure func(*textWorker), opts ...Option) *Component {
	t.Helper()
	var comp *Component
	def := Definition{
		Name:   "echo",
		Inputs: []string{"prompt"},
		Outputs: []OutputParam{
			{Name: "text", GUID: testOutputGUID, Index: 0},
		},
		NewWorker: func() Worker {
			w := &textWorker{comp: comp}
			if configure != nil {
				configure(w)
			}
			return w
		},
	}
	comp = NewComponent(def, host.SyncDispatcher{}, func() {}, opts...)
	t.Cleanup(comp.Close)
	return comp
}

func solveUntilReady(t *testing.T, comp *Component, da host.DataAccess) {
	t.Helper()
	require.Eventually(t, func() bool {
		return comp.Engine().OutputReady()
	}, 2*time.Second, 5*time.Millisecond, "worker output never became ready")
	require.NoError(t, comp.Solve(da))
}

func TestComponent_FullRunCycle(t *testing.T) {
	comp := newTextComponent(t, nil)
	da := host.NewMemoryAccess(1)
	da.SetInputItem("prompt", "hello")
	da.SetInputItem("run", true)

	// Skip the editing debounce and go straight to the run-ready state.
	comp.ForceStateForDebug(StateNeedsRun)

	// Run is enabled: this pass transitions to Processing and launches.
	require.NoError(t, comp.Solve(da))
	assert.Equal(t, StateProcessing, comp.State())

	solveUntilReady(t, comp, da)
	assert.Equal(t, StateCompleted, comp.State())

	out := da.Output(0)
	require.Len(t, out.Branches, 1)
	assert.Equal(t, host.Item("echo:hello"), out.Branches[0].Items[0])

	v, ok := comp.PersistedOutput(testOutputGUID)
	require.True(t, ok)
	assert.Equal(t, "echo:hello", v.Text)

	// Hashes committed: the same inputs no longer count as changed.
	require.NoError(t, comp.Solve(da))
	assert.Equal(t, StateCompleted, comp.State())
}

func TestComponent_RunToggleWithoutInputChange(t *testing.T) {
	var comp *Component
	def := Definition{
		Name: "toggle",
		Outputs: []OutputParam{
			{Name: "text", GUID: testOutputGUID, Index: 0},
		},
		NewWorker: func() Worker { return &fakeWorker{} },
	}
	comp = NewComponent(def, host.SyncDispatcher{}, func() {})
	t.Cleanup(comp.Close)

	da := host.NewMemoryAccess(1)
	da.SetInputItem("run", false)
	require.NoError(t, comp.Solve(da))
	assert.Equal(t, StateCompleted, comp.State())

	da.SetInputItem("run", true)
	require.NoError(t, comp.Solve(da))
	assert.Equal(t, StateProcessing, comp.State(),
		"run toggle alone processes immediately")
}

func TestComponent_RunOnlyOnInputChanges(t *testing.T) {
	var comp *Component
	def := Definition{
		Name: "toggle",
		Outputs: []OutputParam{
			{Name: "text", GUID: testOutputGUID, Index: 0},
		},
		NewWorker: func() Worker { return &fakeWorker{} },
	}
	comp = NewComponent(def, host.SyncDispatcher{}, func() {},
		WithRunOnlyOnInputChanges(true))
	t.Cleanup(comp.Close)

	da := host.NewMemoryAccess(1)
	da.SetInputItem("run", false)
	require.NoError(t, comp.Solve(da))

	da.SetInputItem("run", true)
	require.NoError(t, comp.Solve(da))
	assert.Equal(t, StateWaiting, comp.State(),
		"run toggle alone waits for an input change")
}

func TestComponent_RunToggleOffStaysPut(t *testing.T) {
	var comp *Component
	def := Definition{
		Name: "toggle",
		Outputs: []OutputParam{
			{Name: "text", GUID: testOutputGUID, Index: 0},
		},
		NewWorker: func() Worker { return &fakeWorker{} },
	}
	comp = NewComponent(def, host.SyncDispatcher{}, func() {})
	t.Cleanup(comp.Close)

	da := host.NewMemoryAccess(1)
	da.SetInputItem("run", true)
	require.NoError(t, comp.Solve(da)) // first pass just records the baseline

	da.SetInputItem("run", false)
	state := comp.State()
	require.NoError(t, comp.Solve(da))
	assert.Equal(t, state, comp.State(), "disabling run changes nothing")
}

func TestComponent_InputChangeDebouncesToNeedsRun(t *testing.T) {
	comp := newTextComponent(t, nil)
	da := host.NewMemoryAccess(1)
	da.SetInputItem("prompt", "hello")
	da.SetInputItem("run", false)

	require.NoError(t, comp.Solve(da))
	assert.Equal(t, StateCompleted, comp.State(),
		"transition waits out the debounce window")

	assert.Eventually(t, func() bool {
		return comp.State() == StateNeedsRun
	}, 3*time.Second, 20*time.Millisecond)

	msgs := comp.Messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, message.KeyNeedsRun, msgs[0].Key)
}

func TestComponent_WorkerFaultMovesToError(t *testing.T) {
	comp := newTextComponent(t, func(w *textWorker) {
		w.err = errors.New("backend down")
	})
	da := host.NewMemoryAccess(1)
	da.SetInputItem("prompt", "hello")
	da.SetInputItem("run", true)

	comp.ForceStateForDebug(StateNeedsRun)
	require.NoError(t, comp.Solve(da))

	require.Eventually(t, func() bool {
		return comp.Engine().OutputReady()
	}, 2*time.Second, 5*time.Millisecond)

	err := comp.Solve(da)
	require.Error(t, err)
	assert.Equal(t, StateError, comp.State())
	assert.Empty(t, comp.Manager().CommittedHashes(),
		"a faulted run must not commit the pending baseline")

	found := false
	for _, m := range comp.Messages() {
		if m.Key == message.KeyWorker && m.Severity == message.Error {
			found = true
		}
	}
	assert.True(t, found, "worker fault must surface as a diagnostic")
}

func TestComponent_Cancellation(t *testing.T) {
	block := make(chan struct{})
	comp := newTextComponent(t, func(w *textWorker) { w.block = block })
	da := host.NewMemoryAccess(1)
	da.SetInputItem("prompt", "hello")
	da.SetInputItem("run", true)

	comp.ForceStateForDebug(StateNeedsRun)
	require.NoError(t, comp.Solve(da))
	require.Equal(t, StateProcessing, comp.State())

	comp.RequestTaskCancellation()
	assert.Equal(t, StateCancelled, comp.State())

	found := false
	for _, m := range comp.Messages() {
		if m.Key == message.KeyCancelled {
			found = true
			assert.Contains(t, m.Text, "manually cancelled")
		}
	}
	require.True(t, found)

	// The next pass flushes the abandoned result instead of harvesting.
	require.Eventually(t, func() bool {
		return comp.Engine().OutputReady()
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, comp.Solve(da))
	assert.Zero(t, comp.Engine().ActiveCount())

	_, ok := comp.PersistedOutput(testOutputGUID)
	assert.False(t, ok, "abandoned output must not be persisted")
}

func TestComponent_SaveReloadSuppression(t *testing.T) {
	comp := newTextComponent(t, nil)
	da := host.NewMemoryAccess(1)
	da.SetInputItem("prompt", "hello")
	da.SetInputItem("run", true)

	comp.ForceStateForDebug(StateNeedsRun)
	require.NoError(t, comp.Solve(da))
	solveUntilReady(t, comp, da)
	require.Equal(t, StateCompleted, comp.State())

	chunk := host.NewMemoryChunk()
	require.True(t, comp.WriteState(chunk))

	// Fresh instance, as after a document reload.
	reloaded := newTextComponent(t, nil)
	require.True(t, reloaded.ReadState(chunk))
	assert.True(t, reloaded.Manager().Suppressed())

	// First solve after load: persisted outputs re-emitted, no state churn.
	da2 := host.NewMemoryAccess(1)
	da2.SetInputItem("prompt", "hello")
	da2.SetInputItem("run", false)
	require.NoError(t, reloaded.Solve(da2))
	assert.Equal(t, StateCompleted, reloaded.State())

	out := da2.Output(0)
	require.Len(t, out.Branches, 1)
	assert.Equal(t, host.Item("echo:hello"), out.Branches[0].Items[0])

	// Suppression has lifted and the restored baseline matches the live
	// inputs, so nothing registers as changed.
	assert.False(t, reloaded.Manager().Suppressed())
	require.NoError(t, reloaded.Solve(da2))
	assert.Equal(t, StateCompleted, reloaded.State())
}

func TestComponent_ReadStateLegacyFormat(t *testing.T) {
	chunk := host.NewMemoryChunk()
	chunk.SetBytes("ParamName_0", []byte("text"))
	chunk.SetBytes("ParamType_0", []byte("text"))
	chunk.SetBytes("Value_0", []byte("old result"))

	comp := newTextComponent(t, nil)
	require.True(t, comp.ReadState(chunk))

	v, ok := comp.PersistedOutput(testOutputGUID)
	require.True(t, ok, "legacy value should map to the output GUID by name")
	assert.Equal(t, "old result", v.Text)
}

func TestComponent_SuppressedSolveWithoutOutputsRequestsRun(t *testing.T) {
	comp := newTextComponent(t, nil)
	require.True(t, comp.ReadState(host.NewMemoryChunk()))

	da := host.NewMemoryAccess(1)
	da.SetInputItem("prompt", "hello")
	require.NoError(t, comp.Solve(da))

	assert.Equal(t, StateNeedsRun, comp.State(),
		"no persisted outputs after load means the node needs a run")
}

func TestComponent_OutputStoreRoundTrip(t *testing.T) {
	store := persist.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	id := uuid.New()
	comp := newTextComponent(t, nil, WithOutputStore(store), WithInstanceID(id))
	da := host.NewMemoryAccess(1)
	da.SetInputItem("prompt", "hello")
	da.SetInputItem("run", true)

	comp.ForceStateForDebug(StateNeedsRun)
	require.NoError(t, comp.Solve(da))
	solveUntilReady(t, comp, da)

	// A second component with the same instance ID picks up the stored
	// outputs at construction.
	twin := newTextComponent(t, nil, WithOutputStore(store), WithInstanceID(id))
	v, ok := twin.PersistedOutput(testOutputGUID)
	require.True(t, ok)
	assert.Equal(t, "echo:hello", v.Text)
}

func TestComponent_Badge(t *testing.T) {
	comp := newTextComponent(t, nil)
	comp.SetProgress(2, 5)

	b := comp.Badge()
	assert.Equal(t, StateCompleted, b.State)
	assert.Equal(t, "2/5", b.Progress.String())
	assert.False(t, b.HasPersistedOutputs)

	comp.StoreOutput(testOutputGUID, persist.TextValue("x"))
	assert.True(t, comp.Badge().HasPersistedOutputs)
}
