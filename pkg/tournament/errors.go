package tournament

import "fmt"

// InconclusiveRoundError reports a round that finished with too few ok
// candidates to score. The round itself is still returned and persisted;
// callers decide whether to retry with a larger provider set or fail the
// task.
type InconclusiveRoundError struct {
	RoundID  string
	OKCount  int
	Required int
}

func (e *InconclusiveRoundError) Error() string {
	return fmt.Sprintf("round %s inconclusive: %d ok candidates, %d required",
		e.RoundID, e.OKCount, e.Required)
}

// CancellationRequestedError reports that the caller's context was
// cancelled mid-flight. In-flight work is recorded as timed out and the
// round or verification record is persisted before this is returned.
type CancellationRequestedError struct {
	Err error
}

func (e *CancellationRequestedError) Error() string {
	return fmt.Sprintf("cancellation requested: %v", e.Err)
}

func (e *CancellationRequestedError) Unwrap() error {
	return e.Err
}
