package orchestrator

import (
	"errors"
	"fmt"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// Event drives a phase transition.
type Event string

const (
	EventStart       Event = "start"
	EventParsed      Event = "parsed"
	EventResolved    Event = "resolved"
	EventSynthesized Event = "synthesized"
	EventFail        Event = "fail"
)

// ErrInvalidTransition is returned by Next for events the phase does not accept.
var ErrInvalidTransition = errors.New("invalid phase transition")

var transitions = map[pipeline.Phase]map[Event]pipeline.Phase{
	pipeline.PhaseReceived: {
		EventStart: pipeline.PhaseParsing,
	},
	pipeline.PhaseParsing: {
		EventParsed: pipeline.PhaseContextResolution,
	},
	pipeline.PhaseContextResolution: {
		EventResolved: pipeline.PhaseSynthesizing,
	},
	pipeline.PhaseSynthesizing: {
		EventSynthesized: pipeline.PhaseCompleted,
	},
}

// Next returns the phase that follows p on event e. Every non-terminal phase
// accepts EventFail; terminal phases accept nothing.
func Next(p pipeline.Phase, e Event) (pipeline.Phase, error) {
	if p.Terminal() {
		return p, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, p)
	}
	if e == EventFail {
		if _, known := transitions[p]; known {
			return pipeline.PhaseFailed, nil
		}
	}
	if next, ok := transitions[p][e]; ok {
		return next, nil
	}
	return p, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, p)
}
