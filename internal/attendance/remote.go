package attendance

import "context"

// Remote is the part of the remote attendance service a Session needs.
type Remote interface {
	// FetchAttendance returns the student's records in the class between
	// start and end inclusive. Returned records need not carry a registration id.
	FetchAttendance(ctx context.Context, studentID, classID int64, start, end Date) ([]Record, error)
	// CommitAttendance writes every record or none.
	CommitAttendance(ctx context.Context, records []Record) error
}

// Observer receives outcome counts from a Session.
type Observer interface {
	FetchCompleted(err error)
	StaleDiscarded()
	CommitCompleted(records int, err error)
}

type nopObserver struct{}

func (nopObserver) FetchCompleted(error)       {}
func (nopObserver) StaleDiscarded()            {}
func (nopObserver) CommitCompleted(int, error) {}
