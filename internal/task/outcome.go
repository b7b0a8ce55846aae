package task

// Outcome is the queue disposition of a processed grading request.
type Outcome int

const (
	// OutcomeAck acknowledges the delivery; the work is done or provably
	// not needed.
	OutcomeAck Outcome = iota

	// OutcomeRetry rejects the delivery and requeues it for another attempt.
	OutcomeRetry

	// OutcomeDrop rejects the delivery without requeueing; the message is
	// poison or its work can never complete.
	OutcomeDrop
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	case OutcomeDrop:
		return "drop"
	default:
		return "unknown"
	}
}
