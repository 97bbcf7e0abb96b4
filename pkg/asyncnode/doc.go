// Package asyncnode implements a stateful asynchronous component runtime
// for node-canvas plugins: a per-node finite state machine with a
// generation-counted debounce scheduler, a two-phase async worker engine
// compatible with a host's repeated synchronous solve calls, and
// restoration-aware input-fingerprint tracking that survives document
// save/reload and copy/paste.
//
// The entry point for most plugins is Component, which composes the state
// machine (StateManager), the worker engine (Engine), keyed runtime
// diagnostics, and output persistence behind a single Solve method that a
// host calls on every solve pass:
//
//	def := asyncnode.Definition{
//		Name:   "my_node",
//		Inputs: []string{"prompt"},
//		Outputs: []asyncnode.OutputParam{
//			{Name: "text", GUID: outputGUID, Index: 0},
//		},
//		NewWorker: func() asyncnode.Worker { return &myWorker{} },
//	}
//	comp := asyncnode.NewComponent(def, dispatcher, expire)
//	...
//	err := comp.Solve(da) // on every host solve call
//
// Hosts integrate through the interfaces in the host subpackage; nothing
// in the runtime assumes a concrete canvas application.
package asyncnode
