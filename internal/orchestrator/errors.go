package orchestrator

import "fmt"

// Phase is a distinct stage in the tool-call loop's lifecycle, used only
// for diagnostics — the loop's externally visible behavior is entirely
// expressed through the ChatChunk stream.
type Phase string

const (
	PhaseScope       Phase = "scope"
	PhaseInit        Phase = "init"
	PhaseStream      Phase = "stream"
	PhaseExecuteTool Phase = "execute_tool"
	PhasePersist     Phase = "persist"
)

// LoopError carries the phase and round an internal failure occurred in,
// for logging; callers never see this type directly, only the generic
// ERROR chunk it is converted into.
type LoopError struct {
	Phase Phase
	Round int
	Cause error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("orchestrator error at %s (round %d): %v", e.Phase, e.Round, e.Cause)
}

func (e *LoopError) Unwrap() error { return e.Cause }
