package asyncnode

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halverson/asyncnode/pkg/asyncnode/hash"
	"github.com/halverson/asyncnode/pkg/asyncnode/host"
	"github.com/halverson/asyncnode/pkg/asyncnode/message"
	"github.com/halverson/asyncnode/pkg/asyncnode/observability"
	"github.com/halverson/asyncnode/pkg/asyncnode/persist"
)

// MinDebounce is the floor on the debounce window. A user-configured
// setting below this would defeat the point of debouncing; the effective
// window is always the larger of the setting and this floor.
const MinDebounce = 1000 * time.Millisecond

// Chunk key schema for document persistence.
const (
	chunkKeyOutputs       = "PersistedOutputs"
	chunkPrefixHash       = "InputHash_"
	chunkPrefixBranches   = "InputBranchCount_"
	legacyPrefixParamName = "ParamName_"
	legacyPrefixParamType = "ParamType_"
	legacyPrefixValue     = "Value_"
)

// OutputParam describes one output parameter of a node: its name, its
// stable GUID (the persistence key), and its index in the host's output
// list.
type OutputParam struct {
	Name  string
	GUID  uuid.UUID
	Index int
}

// Definition declares a component's parameter surface and worker.
type Definition struct {
	// Name is the component's display name, used in logs.
	Name string

	// Inputs are the names of the hashed input parameters. The run
	// input is tracked separately and must not be listed here.
	Inputs []string

	// RunInput is the name of the boolean "Run?" input. Default: "run".
	RunInput string

	// Outputs are the output parameters, in host index order.
	Outputs []OutputParam

	// NewWorker creates a fresh worker for each run.
	NewWorker WorkerFactory
}

// Component binds a StateManager and an Engine into a host's solve
// cycle. It computes per-input content fingerprints, applies the
// input-change decision table, persists committed fingerprints and
// output values across save/reload, and re-applies keyed runtime
// messages on every pass.
//
// A Component is a composition, not a base class: concrete nodes hold
// one and forward their solve entry point to it.
type Component struct {
	id         uuid.UUID
	def        Definition
	mgr        *StateManager
	engine     *Engine
	messages   *message.Store
	dispatcher host.Dispatcher
	expire     func()
	settings   host.Settings
	logger     *slog.Logger
	store      persist.Store

	runOnlyOnInputChanges bool

	// prevRun tracks the run input across solve passes so "only Run?
	// changed" can be told apart from "other inputs changed".
	prevRun  bool
	runKnown bool

	// outputs is the name-independent store of last produced values,
	// keyed by output parameter GUID. Accessed only from the host
	// thread; this is a documented assumption, not an enforced one.
	outputs persist.OutputSet

	progressMu sync.Mutex
	progress   ProgressInfo

	selectionMode bool

	pendingEngineOpts []EngineOption
}

// Option configures a Component.
type Option func(*Component)

// WithRunOnlyOnInputChanges makes an enabled run wait for an input
// change instead of processing immediately (Waiting instead of
// Processing when the run input flips on).
func WithRunOnlyOnInputChanges(v bool) Option {
	return func(c *Component) { c.runOnlyOnInputChanges = v }
}

// WithSettings sets the host settings provider. The debounce window is
// read fresh from it on every arm.
func WithSettings(s host.Settings) Option {
	return func(c *Component) { c.settings = s }
}

// WithLogger sets the logger for the component, its manager, and its
// engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Component) { c.logger = logger }
}

// WithOutputStore attaches a sidecar output store. On every successful
// completion the encoded output set is saved to it keyed by the node
// instance ID, and at construction any stored set is loaded back.
func WithOutputStore(store persist.Store) Option {
	return func(c *Component) { c.store = store }
}

// WithInstanceID fixes the node instance ID instead of generating one.
// Used when the host assigns instance GUIDs.
func WithInstanceID(id uuid.UUID) Option {
	return func(c *Component) { c.id = id }
}

// WithEngineOptions forwards options to the component's engine.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(c *Component) { c.pendingEngineOpts = append(c.pendingEngineOpts, opts...) }
}

// NewComponent creates a component for one node instance. expire
// schedules a host re-solve and is invoked through the dispatcher
// whenever a background continuation needs the host to call Solve again.
func NewComponent(def Definition, dispatcher host.Dispatcher, expire func(), opts ...Option) *Component {
	if def.RunInput == "" {
		def.RunInput = "run"
	}
	if def.NewWorker == nil {
		panic("asyncnode: component definition needs a worker factory")
	}

	c := &Component{
		id:         uuid.New(),
		def:        def,
		messages:   message.NewStore(),
		dispatcher: dispatcher,
		expire:     expire,
		settings:   host.StaticSettings{Debounce: MinDebounce},
		outputs:    make(persist.OutputSet),
	}
	for _, opt := range opts {
		opt(c)
	}

	metrics := observability.NewMetricsRecorder()

	c.mgr = NewStateManager(c.id.String(),
		WithManagerLogger(c.logger),
		WithManagerMetrics(metrics),
		WithManagerEvents(Events{
			StateEntered: c.stateEntered,
			StateExited:  c.stateExited,
		}),
	)

	engOpts := []EngineOption{
		WithEngineLogger(c.logger),
		WithEngineMetrics(metrics),
	}
	engOpts = append(engOpts, c.pendingEngineOpts...)
	c.engine = NewEngine(c.id.String(), dispatcher, expire, engOpts...)

	if c.store != nil {
		c.loadFromStore()
	}

	return c
}

// ID returns the node instance ID.
func (c *Component) ID() uuid.UUID { return c.id }

// State returns the current lifecycle state.
func (c *Component) State() State { return c.mgr.Current() }

// Manager exposes the state manager for advanced hosts and tests.
func (c *Component) Manager() *StateManager { return c.mgr }

// Engine exposes the worker engine for advanced hosts and tests.
func (c *Component) Engine() *Engine { return c.engine }

// Messages returns the current keyed diagnostics, sorted by key. Hosts
// re-apply these on every solve pass, since the host's own diagnostic
// buffer is cleared each pass.
func (c *Component) Messages() []message.Message { return c.messages.Snapshot() }

// SetProgress updates the progress counter shown while processing.
// Safe to call from worker goroutines.
func (c *Component) SetProgress(current, total int) {
	c.progressMu.Lock()
	c.progress = ProgressInfo{Current: current, Total: total}
	c.progressMu.Unlock()
}

// Progress returns the current progress counter.
func (c *Component) Progress() ProgressInfo {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	return c.progress
}

// BadgeFlags is a read-only snapshot for rendering decisions.
type BadgeFlags struct {
	State               State
	HasPersistedOutputs bool
	MessageCount        int
	Progress            ProgressInfo
	SelectionMode       bool
}

// Badge returns the current rendering snapshot.
func (c *Component) Badge() BadgeFlags {
	return BadgeFlags{
		State:               c.mgr.Current(),
		HasPersistedOutputs: len(c.outputs) > 0,
		MessageCount:        c.messages.Len(),
		Progress:            c.Progress(),
		SelectionMode:       c.selectionMode,
	}
}

// EnableSelectionMode toggles the UI selection-mode flag and asks the
// host to redraw.
func (c *Component) EnableSelectionMode() {
	c.selectionMode = true
	c.dispatcher.Invoke(c.expire)
}

// ForceStateForDebug bypasses transition validation. Debug menu only.
func (c *Component) ForceStateForDebug(s State) {
	c.mgr.ForceState(s)
}

// RequestTaskCancellation cancels every active worker's context and, if
// work was in flight, forces the state machine to Cancelled so downstream
// logic is consistent with the abandoned work. The task itself is not
// force-aborted; a worker that ignores its context will have its output
// flushed, never harvested.
func (c *Component) RequestTaskCancellation() {
	c.engine.CancelAll()
	c.mgr.CancelDebounce()
	if c.mgr.Current() == StateProcessing {
		c.mgr.ForceState(StateCancelled)
		c.messages.Set(message.KeyCancelled, message.Error, "execution was manually cancelled")
	}
}

// StoreOutput records the last produced value for an output parameter.
// Concrete workers call this from SetOutput so the value survives
// save/reload before the node is re-run.
func (c *Component) StoreOutput(guid uuid.UUID, v persist.Value) {
	c.outputs[guid] = v
}

// PersistedOutput returns the stored value for an output parameter.
func (c *Component) PersistedOutput(guid uuid.UUID) (persist.Value, bool) {
	v, ok := c.outputs[guid]
	return v, ok
}

// Solve is the host's synchronous entry point. It never blocks: phase
// one of a run launches background work and returns, and the engine
// schedules the re-solve that harvests output later.
func (c *Component) Solve(da host.DataAccess) error {
	defer c.mgr.ClearSuppressionAfterFirstSolve()

	if c.mgr.Suppressed() {
		c.solveSuppressed(da)
		return nil
	}

	run := c.readRun(da)
	c.updatePendingHashes(da)

	state := c.mgr.Current()
	var err error
	switch state {
	case StateCompleted:
		c.emitPersisted(da)
	case StateWaiting:
		c.emitPersisted(da)
	case StateNeedsRun:
		c.solveNeedsRun(da, run)
	case StateProcessing:
		err = c.solveProcessing(da)
	case StateCancelled:
		c.engine.Flush()
		c.emitPersisted(da)
	case StateError:
		c.emitPersisted(da)
	}

	// The decision table applies only in idle states; Processing and
	// NeedsRun manage their own exits.
	switch state {
	case StateCompleted, StateWaiting, StateCancelled, StateError:
		c.evaluateChanges(run)
	default:
		c.prevRun = run
		c.runKnown = true
	}
	return err
}

// solveSuppressed handles solve calls during the restoration window:
// stay in Completed and re-emit persisted outputs if any exist,
// otherwise ask for a run. The act of loading must never look like an
// edit.
func (c *Component) solveSuppressed(da host.DataAccess) {
	if len(c.outputs) > 0 {
		c.emitPersisted(da)
		return
	}
	c.messages.Set(message.KeyNeedsRun, message.Remark, "set Run to true to execute")
	c.mgr.RequestTransition(StateNeedsRun, ReasonFileRestoration)
}

func (c *Component) solveNeedsRun(da host.DataAccess, run bool) {
	c.emitPersisted(da)
	if !run {
		c.messages.Set(message.KeyNeedsRun, message.Remark, "set Run to true to execute")
		return
	}
	c.messages.Clear(message.KeyNeedsRun)
	if c.mgr.RequestTransition(StateProcessing, ReasonRunEnabled) {
		// Launch on this same pass; the data-access handle is only
		// valid here.
		c.launch(da)
	}
}

func (c *Component) solveProcessing(da host.DataAccess) error {
	if c.engine.OutputReady() {
		return c.harvest(da)
	}
	if c.engine.ActiveCount() == 0 {
		c.launch(da)
	}
	// Workers in flight; nothing to do on this pass.
	return nil
}

// launch starts a fresh worker (phase one). Called with the state
// machine already in Processing.
func (c *Component) launch(da host.DataAccess) {
	w := c.def.NewWorker()
	if err := c.engine.Launch(da, w); err != nil {
		c.messages.Set(message.KeyWorker, message.Error, err.Error())
		c.mgr.RequestTransition(StateError, ReasonError)
		return
	}
	c.armSafetyNet()
}

// harvest completes phase two: write outputs on the host thread, commit
// the new baseline on success, and settle into Completed or Error.
func (c *Component) harvest(da host.DataAccess) error {
	drained, status, err := c.engine.Harvest(da)
	if status != "" {
		c.messages.Set(message.KeyWorker, message.Remark, status)
	}
	if err != nil {
		c.messages.Set(message.KeyWorker, message.Error, err.Error())
	}
	if !drained {
		return err
	}

	c.mgr.CancelDebounce()
	if err != nil {
		c.mgr.RequestTransition(StateError, ReasonError)
		return err
	}

	// Success: the pending fingerprints become the new baseline, so the
	// values that produced this result no longer count as "changed".
	c.mgr.CommitHashes()
	c.mgr.RequestTransition(StateCompleted, ReasonProcessingComplete)
	c.saveToStore()
	return nil
}

// evaluateChanges applies the input-change decision table in idle
// states.
func (c *Component) evaluateChanges(run bool) {
	changed := c.mgr.GetChangedInputs()
	runChanged := c.runKnown && run != c.prevRun
	c.prevRun = run
	c.runKnown = true

	switch {
	case len(changed) == 0 && !runChanged:
		return
	case len(changed) == 0 && !run:
		// Run toggled off with nothing else changed: stay put.
		return
	case len(changed) == 0:
		// Only the run input changed, and it is now true.
		if c.runOnlyOnInputChanges {
			c.mgr.RequestTransition(StateWaiting, ReasonRunEnabled)
		} else {
			c.mgr.RequestTransition(StateProcessing, ReasonRunEnabled)
		}
	case run:
		c.mgr.StartDebounce(StateProcessing, c.debounceWindow())
	default:
		c.mgr.StartDebounce(StateNeedsRun, c.debounceWindow())
	}
}

// debounceWindow reads the configured setting fresh and applies the
// hard floor.
func (c *Component) debounceWindow() time.Duration {
	d := c.settings.DebounceTime()
	if d < MinDebounce {
		d = MinDebounce
	}
	return d
}

// stateEntered reacts to the manager's transitions.
func (c *Component) stateEntered(s State) {
	switch s {
	case StateProcessing:
		// The launch itself needs a data-access handle, which only a
		// solve call carries. Ask the host for one.
		c.dispatcher.Invoke(c.expire)
	case StateNeedsRun:
		c.messages.Set(message.KeyNeedsRun, message.Remark, "set Run to true to execute")
		c.dispatcher.Invoke(c.expire)
	case StateCompleted:
		c.dispatcher.Invoke(c.expire)
	}
}

func (c *Component) stateExited(s State) {
	switch s {
	case StateNeedsRun:
		c.messages.Clear(message.KeyNeedsRun)
	case StateCancelled:
		c.messages.Clear(message.KeyCancelled)
	}
}

// armSafetyNet schedules a one-shot re-check for the known race where a
// boolean toggle leaves the node in Processing with no worker in flight
// and no output pending. Not a general timeout.
func (c *Component) armSafetyNet() {
	window := c.debounceWindow()
	time.AfterFunc(window, func() {
		if c.mgr.closed.Load() {
			return
		}
		if c.mgr.Current() == StateProcessing &&
			c.engine.ActiveCount() == 0 && !c.engine.OutputReady() {
			c.dispatcher.Invoke(c.expire)
		}
	})
}

// readRun reads the boolean run input. Missing input reads as false.
func (c *Component) readRun(da host.DataAccess) bool {
	v, ok := da.GetData(c.def.RunInput)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// updatePendingHashes fingerprints every declared input from the live
// canvas state.
func (c *Component) updatePendingHashes(da host.DataAccess) {
	fps := make(map[string]hash.Fingerprint, len(c.def.Inputs))
	for _, name := range c.def.Inputs {
		tree, _ := da.GetTree(name)
		fps[name] = hash.Tree(tree)
	}
	c.mgr.UpdatePendingHashes(fps)
}

// emitPersisted writes the stored output values through the handle so
// downstream nodes see the last results instead of empty data.
func (c *Component) emitPersisted(da host.DataAccess) {
	for _, p := range c.def.Outputs {
		if v, ok := c.outputs[p.GUID]; ok {
			if err := da.SetDataTree(p.Index, v.AsTree()); err != nil {
				observability.LogRestoreError(c.logger, c.id.String(), err)
			}
		}
	}
}

// WriteState serializes the committed fingerprints and persisted outputs
// through the host's chunk writer at document save. Returns false on
// serialization failure; the host treats that as "no persisted data".
func (c *Component) WriteState(w host.ChunkWriter) bool {
	for name, fp := range c.mgr.CommittedHashes() {
		w.SetInt32(chunkPrefixHash+name, fp.Hash)
		w.SetInt32(chunkPrefixBranches+name, fp.BranchCount)
	}
	if len(c.outputs) == 0 {
		return true
	}
	data, err := persist.Encode(c.outputs)
	if err != nil {
		observability.LogRestoreError(c.logger, c.id.String(), err)
		return false
	}
	w.SetBytes(chunkKeyOutputs, data)
	return true
}

// ReadState restores fingerprints and outputs at document load. The
// restoration suppression window opens before any parsing and the
// restoring phase always closes, parse success or not; suppression then
// lasts through the first post-load solve call.
func (c *Component) ReadState(r host.ChunkReader) bool {
	c.mgr.BeginRestoration()
	defer c.mgr.EndRestoration()

	restored := make(map[string]hash.Fingerprint)
	for _, key := range r.Keys() {
		name, found := strings.CutPrefix(key, chunkPrefixHash)
		if !found {
			continue
		}
		h, _ := r.Int32(key)
		bc, _ := r.Int32(chunkPrefixBranches + name)
		restored[name] = hash.Fingerprint{Hash: h, BranchCount: bc}
	}
	c.mgr.RestoreCommittedHashes(restored)

	ok := true
	if data, found := r.Bytes(chunkKeyOutputs); found {
		set, err := persist.Decode(data)
		if err != nil {
			observability.LogRestoreError(c.logger, c.id.String(), err)
			ok = false
		} else {
			c.outputs = set
		}
	} else if legacy := c.readLegacyOutputs(r); len(legacy) > 0 {
		c.outputs = legacy
	}

	observability.LogRestore(c.logger, c.id.String(), len(restored), len(c.outputs))
	return ok
}

// readLegacyOutputs reads the pre-envelope key schema
// (ParamName_i / ParamType_i / Value_i). Still read for old documents,
// never written.
func (c *Component) readLegacyOutputs(r host.ChunkReader) persist.OutputSet {
	byName := make(map[string]uuid.UUID, len(c.def.Outputs))
	for _, p := range c.def.Outputs {
		byName[p.Name] = p.GUID
	}

	set := make(persist.OutputSet)
	for i := 0; ; i++ {
		nameB, ok := r.Bytes(fmt.Sprintf("%s%d", legacyPrefixParamName, i))
		if !ok {
			break
		}
		typeB, _ := r.Bytes(fmt.Sprintf("%s%d", legacyPrefixParamType, i))
		valB, _ := r.Bytes(fmt.Sprintf("%s%d", legacyPrefixValue, i))

		guid, known := byName[string(nameB)]
		if !known {
			continue
		}
		if v, ok := decodeLegacyValue(string(typeB), valB); ok {
			set[guid] = v
		}
	}
	return set
}

// decodeLegacyValue decodes one legacy-format value by its type tag.
func decodeLegacyValue(typeTag string, data []byte) (persist.Value, bool) {
	switch typeTag {
	case "text":
		return persist.TextValue(string(data)), true
	case "bool":
		return persist.BoolValue(len(data) > 0 && data[0] != 0), true
	case "int":
		if len(data) != 8 {
			return persist.Value{}, false
		}
		return persist.IntValue(int64(binary.LittleEndian.Uint64(data))), true
	case "float":
		if len(data) != 8 {
			return persist.Value{}, false
		}
		return persist.FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(data))), true
	case "bytes":
		return persist.BytesValue(data), true
	default:
		return persist.Value{}, false
	}
}

// saveToStore mirrors the output set into the sidecar store, if one is
// attached.
func (c *Component) saveToStore() {
	if c.store == nil || len(c.outputs) == 0 {
		return
	}
	data, err := persist.Encode(c.outputs)
	if err != nil {
		observability.LogRestoreError(c.logger, c.id.String(), err)
		return
	}
	if err := c.store.Save(c.id.String(), data); err != nil {
		observability.LogRestoreError(c.logger, c.id.String(), err)
	}
}

// loadFromStore pulls a previously saved output set from the sidecar
// store at construction. Absence is not an error.
func (c *Component) loadFromStore() {
	data, err := c.store.Load(c.id.String())
	if err != nil {
		if err != persist.ErrNotFound {
			observability.LogRestoreError(c.logger, c.id.String(), err)
		}
		return
	}
	set, err := persist.Decode(data)
	if err != nil {
		observability.LogRestoreError(c.logger, c.id.String(), err)
		return
	}
	c.outputs = set
}

// Close releases the component's state machine and cancels any in-flight
// work. The component must not be used afterwards.
func (c *Component) Close() {
	c.engine.CancelAll()
	c.mgr.Close()
}
