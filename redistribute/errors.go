package redistribute

import "errors"

var (
	// ErrInvalidSchedule is a schedule that does not cover the local cells
	// exactly once or names impossible peers
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrScheduleAsymmetry is a receive whose count the sending peer does not
	// agree with
	ErrScheduleAsymmetry = errors.New("schedule asymmetry")
	// ErrLayoutMismatch means two peers disagree on which attribute roles a
	// transfer carries
	ErrLayoutMismatch = errors.New("attribute layout mismatch")
	// ErrSizeMismatch is packed or received data that differs from the size
	// announced before the transfer
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrAllocation is an output size that cannot be allocated
	ErrAllocation = errors.New("allocation failure")
)
