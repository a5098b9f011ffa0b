package download

import "fmt"

// SegmentFetchError reports a failed transfer or write of one segment. It
// aborts the current round only; the segment is retried in the next round.
type SegmentFetchError struct {
	Index int
	Err   error
}

func (e *SegmentFetchError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentFetchError) Unwrap() error {
	return e.Err
}
