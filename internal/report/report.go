// Package report holds the outcome discriminator carried by every typed
// result the engine returns.
package report

// Status tells a caller whether to proceed, proceed with care, or stop.
type Status string

const (
	Success Status = "success"
	Warning Status = "warning"
	Failed  Status = "failed"
)

// Worst returns the more severe of a and b.
func Worst(a, b Status) Status {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func rank(s Status) int {
	switch s {
	case Failed:
		return 2
	case Warning:
		return 1
	default:
		return 0
	}
}
