// Package agentcore is an embeddable agent execution runtime. It drives a
// turn-based loop against a streaming model provider, dispatches the model's
// tool calls concurrently under sandbox and approval policies, and exposes
// the whole run as an ordered event stream with pause, resume and stop
// control.
//
// The simplest entry point runs one prompt to completion:
//
//	agent, err := agentcore.New(
//	    agentcore.WithModel("claude-sonnet-4-5"),
//	    tools.Builtins(tools.Config{Workdir: dir}),
//	)
//	text, err := agent.Query(ctx, "summarize ./docs")
//
// Execute gives full control: it consumes an input channel, streams events
// and returns an Execution whose Pause, Resume and Stop methods steer the
// session at turn boundaries.
package agentcore
