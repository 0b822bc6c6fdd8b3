package attendance

import (
	"fmt"
	"strings"
)

// Status is a student's attendance for one day.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusExcused Status = "EXCUSED"
)

// ParseStatus accepts any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// RequiresRemarks reports whether marks with this status must carry remarks.
func (s Status) RequiresRemarks() bool {
	return s == StatusLate || s == StatusExcused
}

// Mark is a status together with its remarks. A valid Mark has non-empty
// remarks exactly when its status requires them.
type Mark struct {
	Status  Status `json:"status"`
	Remarks string `json:"remarks"`
}

// NewMark validates status and remarks as one unit. Remarks are trimmed;
// they are dropped for PRESENT and ABSENT.
func NewMark(status Status, remarks string) (Mark, error) {
	if !status.Valid() {
		return Mark{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	remarks = strings.TrimSpace(remarks)
	if !status.RequiresRemarks() {
		return Mark{Status: status}, nil
	}
	if remarks == "" {
		return Mark{}, ErrRemarksRequired
	}
	return Mark{Status: status, Remarks: remarks}, nil
}

// Valid reports whether m satisfies the remarks rule.
func (m Mark) Valid() bool {
	if !m.Status.Valid() {
		return false
	}
	return m.Status.RequiresRemarks() == (strings.TrimSpace(m.Remarks) != "")
}

// Record is one registration's attendance on one date, as stored by the
// remote attendance service.
type Record struct {
	RegistrationID int64  `json:"registration_id"`
	Date           Date   `json:"date"`
	Status         Status `json:"status"`
	Remarks        string `json:"remarks"`
}

func (r Record) Mark() Mark {
	return Mark{Status: r.Status, Remarks: r.Remarks}
}
