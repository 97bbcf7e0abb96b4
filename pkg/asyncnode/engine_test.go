package asyncnode

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
)

// fakeWorker is a scriptable worker for engine tests.
type fakeWorker struct {
	gatherErr error
	workErr   error
	workPanic any
	outputErr error
	status    string
	block     chan struct{} // DoWork waits on this if non-nil

	gathered  atomic.Bool
	outputSet atomic.Bool
	sawCancel atomic.Bool
}

func (w *fakeWorker) GatherInput(host.DataAccess) (int, error) {
	w.gathered.Store(true)
	return 1, w.gatherErr
}

func (w *fakeWorker) DoWork(ctx context.Context) error {
	if w.workPanic != nil {
		panic(w.workPanic)
	}
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			w.sawCancel.Store(true)
			return ctx.Err()
		}
	}
	return w.workErr
}

func (w *fakeWorker) SetOutput(host.DataAccess) (string, error) {
	w.outputSet.Store(true)
	return w.status, w.outputErr
}

// newTestEngine returns an engine whose expire callback signals the
// returned channel, one token per re-solve request.
func newTestEngine(t *testing.T) (*Engine, chan struct{}) {
	t.Helper()
	expired := make(chan struct{}, 16)
	e := NewEngine("n1", host.SyncDispatcher{}, func() { expired <- struct{}{} })
	return e, expired
}

func waitExpire(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for re-solve request")
	}
}

func TestEngine_TwoPhaseProtocol(t *testing.T) {
	e, expired := newTestEngine(t)
	da := host.NewMemoryAccess(1)
	w := &fakeWorker{status: "done"}

	require.NoError(t, e.Launch(da, w))
	assert.True(t, w.gathered.Load(), "gather runs synchronously on launch")
	assert.Equal(t, 1, e.ActiveCount())

	waitExpire(t, expired)
	assert.True(t, e.OutputReady())
	assert.False(t, w.outputSet.Load(), "output waits for the harvest call")

	drained, status, err := e.Harvest(da)
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Equal(t, "done", status)
	assert.True(t, w.outputSet.Load())
	assert.False(t, e.OutputReady())
	assert.Zero(t, e.ActiveCount())
}

func TestEngine_GatherErrorDoesNotLaunch(t *testing.T) {
	e, _ := newTestEngine(t)
	w := &fakeWorker{gatherErr: errors.New("missing input")}

	err := e.Launch(host.NewMemoryAccess(1), w)
	require.Error(t, err)

	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "gather", werr.Op)
	assert.Zero(t, e.ActiveCount())
}

func TestEngine_FaultStillAdvancesLatch(t *testing.T) {
	e, expired := newTestEngine(t)
	da := host.NewMemoryAccess(1)
	w := &fakeWorker{workErr: errors.New("backend down")}

	require.NoError(t, e.Launch(da, w))
	waitExpire(t, expired)
	require.True(t, e.OutputReady(), "a faulted task must still latch")

	drained, _, err := e.Harvest(da)
	assert.True(t, drained)
	require.Error(t, err)

	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "work", werr.Op)
	assert.False(t, w.outputSet.Load(), "faulted worker's output is never written")
}

func TestEngine_PanicBecomesError(t *testing.T) {
	e, expired := newTestEngine(t)
	da := host.NewMemoryAccess(1)
	w := &fakeWorker{workPanic: "boom"}

	require.NoError(t, e.Launch(da, w))
	waitExpire(t, expired)

	_, _, err := e.Harvest(da)
	var perr *WorkerPanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "boom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}

func TestEngine_OutputErrorWraps(t *testing.T) {
	e, expired := newTestEngine(t)
	da := host.NewMemoryAccess(1)
	w := &fakeWorker{outputErr: errors.New("write failed")}

	require.NoError(t, e.Launch(da, w))
	waitExpire(t, expired)

	drained, _, err := e.Harvest(da)
	assert.True(t, drained)

	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "output", werr.Op)
}

func TestEngine_CancelAll(t *testing.T) {
	e, expired := newTestEngine(t)
	da := host.NewMemoryAccess(1)
	w := &fakeWorker{block: make(chan struct{})}

	require.NoError(t, e.Launch(da, w))
	e.CancelAll()

	waitExpire(t, expired)
	assert.True(t, w.sawCancel.Load())

	// Abandoned results are flushed, never harvested.
	e.Flush()
	assert.False(t, e.OutputReady())
	assert.Zero(t, e.ActiveCount())
	assert.False(t, w.outputSet.Load())
}

func TestEngine_FlushLatchTracksLateResults(t *testing.T) {
	e, expired := newTestEngine(t)
	da := host.NewMemoryAccess(1)

	// Race fast completions against flushes. Whatever the interleaving,
	// a settled engine must agree with itself: the latch is up exactly
	// when an undelivered result is parked on the ready list. A result
	// that lands mid-flush must not lose its latch signal.
	for i := 0; i < 200; i++ {
		require.NoError(t, e.Launch(da, &fakeWorker{}))
		e.Flush()
		waitExpire(t, expired)

		e.mu.Lock()
		parked := len(e.ready) > 0
		latch := e.latch
		e.mu.Unlock()
		require.Equal(t, parked, latch, "latch must track undelivered results")

		e.Flush()
	}
}

func TestEngine_WorkerTimeout(t *testing.T) {
	expired := make(chan struct{}, 16)
	e := NewEngine("n1", host.SyncDispatcher{}, func() { expired <- struct{}{} },
		WithWorkerTimeout(20*time.Millisecond))
	da := host.NewMemoryAccess(1)
	w := &fakeWorker{block: make(chan struct{})}

	require.NoError(t, e.Launch(da, w))
	waitExpire(t, expired)

	_, _, err := e.Harvest(da)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_MultipleWorkersDrainTogether(t *testing.T) {
	e, expired := newTestEngine(t)
	da := host.NewMemoryAccess(1)

	w1 := &fakeWorker{}
	w2 := &fakeWorker{}
	require.NoError(t, e.Launch(da, w1))
	require.NoError(t, e.Launch(da, w2))

	waitExpire(t, expired)
	waitExpire(t, expired)

	drained, _, err := e.Harvest(da)
	require.NoError(t, err)
	assert.True(t, drained, "both workers ready before harvest")
	assert.True(t, w1.outputSet.Load())
	assert.True(t, w2.outputSet.Load())
}
