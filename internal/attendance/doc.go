// Package attendance reconciles a class's persisted attendance for one day
// with the operator's unsaved edits.
//
// A Session owns two layers keyed by registration id: the persisted layer,
// loaded from the remote attendance service for the selected date, and the
// staged layer holding edits not yet committed. Reads go through Effective,
// which returns the staged mark when present and the persisted mark
// otherwise, never a mix of the two.
//
// Only today's attendance may be edited. LATE and EXCUSED marks carry
// mandatory remarks; PRESENT and ABSENT carry none.
package attendance
