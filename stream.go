package agentcore

// Stream is an iterator over one execution's events.
//
//	stream, err := agent.Stream(ctx, "prompt")
//	for stream.Next() {
//	    event := stream.Current()
//	    // handle event
//	}
//	if err := stream.Err(); err != nil {
//	    // handle error
//	}
type Stream struct {
	exec    *Execution
	current Event
	err     error
	done    bool
}

func newStream(exec *Execution) *Stream {
	return &Stream{exec: exec}
}

// Next advances to the next event. Returns false once the stream is
// exhausted; a terminal Error event is captured into Err rather than
// surfaced as an iteration value.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	event, ok := <-s.exec.Events()
	if !ok {
		s.done = true
		return false
	}
	if e, isErr := event.(*ErrorEvent); isErr {
		s.err = e.Err
		s.done = true
		return false
	}
	s.current = event
	return true
}

// Current returns the most recent event returned by Next.
func (s *Stream) Current() Event {
	return s.current
}

// Err returns the execution's terminal error, if any.
func (s *Stream) Err() error {
	return s.err
}

// Execution exposes the underlying execution for lifecycle control.
func (s *Stream) Execution() *Execution {
	return s.exec
}
