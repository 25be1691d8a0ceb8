package server

// State is a phase of the service lifecycle.
type State int32

const (
	Starting State = iota
	AwaitingFlagReady
	Serving
	Draining
	Stopped
	FailedToStart
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case AwaitingFlagReady:
		return "awaiting_flag_ready"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	case FailedToStart:
		return "failed_to_start"
	}
	return "unknown"
}
