package roster

import "strings"

// Student is the enrolled person as reported by the roster service.
type Student struct {
	ID        int64  `json:"ID"`
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
}

// Registration enrolls one student in one class. Attendance is recorded
// against the registration, not the student.
type Registration struct {
	ID        int64   `json:"ID"`
	StudentID int64   `json:"StudentID"`
	Status    string  `json:"Status"`
	Student   Student `json:"Student"`
}

// StudentName returns "first last" for display.
func (r Registration) StudentName() string {
	return strings.TrimSpace(r.Student.FirstName + " " + r.Student.LastName)
}

// IDs returns the registration ids in slice order.
func IDs(regs []Registration) []int64 {
	out := make([]int64, 0, len(regs))
	for _, r := range regs {
		out = append(out, r.ID)
	}
	return out
}
