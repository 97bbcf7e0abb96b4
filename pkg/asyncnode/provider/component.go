package provider

import (
	"github.com/google/uuid"

	"github.com/halverson/asyncnode/pkg/asyncnode"
	"github.com/halverson/asyncnode/pkg/asyncnode/host"
	"github.com/halverson/asyncnode/pkg/asyncnode/observability"
	"github.com/halverson/asyncnode/pkg/asyncnode/persist"
)

// OutputTextGUID is the stable persistence key of the completion text
// output. Changing it orphans previously saved values.
var OutputTextGUID = uuid.MustParse("6f1c2a58-9d41-4c7e-b3a2-08c5d94e71f0")

// NewCompletionComponent wires a full AI completion node: prompt, system,
// and model inputs, a text output, and a worker per run that calls the
// given provider.
func NewCompletionComponent(p Provider, dispatcher host.Dispatcher, expire func(), opts ...asyncnode.Option) *asyncnode.Component {
	var comp *asyncnode.Component

	def := asyncnode.Definition{
		Name:   "ai_completion",
		Inputs: []string{InputPrompt, InputSystem, InputModel},
		Outputs: []asyncnode.OutputParam{
			{Name: "text", GUID: OutputTextGUID, Index: 0},
		},
		NewWorker: func() asyncnode.Worker {
			return NewCompletionWorker(p, 0, OutputTextGUID,
				WithWorkerMetrics(observability.NewMetricsRecorder()),
				WithWorkerSpans(observability.NewSpanManager()),
				WithPersistFunc(func(g uuid.UUID, v persist.Value) {
					comp.StoreOutput(g, v)
				}),
			)
		},
	}

	comp = asyncnode.NewComponent(def, dispatcher, expire, opts...)
	return comp
}
