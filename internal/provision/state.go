package provision

// State is a step of a configuration's lifecycle.
type State int

const (
	Unconfigured State = iota
	Rendered
	Up
	SSHConfigured
	Steady
	Destroyed
	Cleaned
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Rendered:
		return "rendered"
	case Up:
		return "up"
	case SSHConfigured:
		return "ssh-configured"
	case Steady:
		return "steady"
	case Destroyed:
		return "destroyed"
	case Cleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}
