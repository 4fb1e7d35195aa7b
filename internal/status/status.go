package status

import "fmt"

type Status = int32

// Attempt and engine states.
const (
	Idle Status = iota
	Resolving
	Connecting
	Requesting
	ReceivingHeader
	Streaming
	Committing
	Restarting
	Succeeded
	Failed
	Halted
)

// String returns a readable name for s.
func String(s Status) string {
	switch s {
	case Idle:
		return "Idle"
	case Resolving:
		return "Resolving"
	case Connecting:
		return "Connecting"
	case Requesting:
		return "Requesting"
	case ReceivingHeader:
		return "ReceivingHeader"
	case Streaming:
		return "Streaming"
	case Committing:
		return "Committing"
	case Restarting:
		return "Restarting"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Halted:
		return "Halted"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}
