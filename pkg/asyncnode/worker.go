package asyncnode

import (
	"context"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
)

// Worker is one asynchronous unit of work for one solve run. The engine
// drives its three operations in strict order:
//
//  1. GatherInput on the host thread, copying everything the work needs
//     into worker-local fields. The data-access handle must not be
//     retained past this call.
//  2. DoWork on a background goroutine. It must observe ctx promptly and
//     return on cancellation rather than ignoring it.
//  3. SetOutput on the host thread, writing results back through the
//     handle. The returned status message, if non-empty, is surfaced as
//     a remark on the node.
//
// GatherInput and SetOutput never overlap with DoWork for the same
// worker instance, but a new worker for a newer run may already be
// gathering input while an older worker's cancellation is still
// propagating. Cancellation is advisory, not a hard join.
type Worker interface {
	GatherInput(da host.DataAccess) (int, error)
	DoWork(ctx context.Context) error
	SetOutput(da host.DataAccess) (string, error)
}

// WorkerFactory creates a fresh worker for each run.
type WorkerFactory func() Worker
