package attendance

import (
	"context"
	"sort"
	"time"
)

// Commit sends every staged edit to the remote service as one atomic write.
// On success the edits replace the persisted records and leave the staged
// layer; on failure nothing changes and the returned *TransportError can be
// retried. A second commit while one is in flight fails with
// ErrCommitInProgress.
func (s *Session) Commit(ctx context.Context) (Commit, error) {
	s.mu.Lock()
	if err := s.checkEditable(opCommit); err != nil {
		s.mu.Unlock()
		return Commit{}, err
	}
	if len(s.staged) == 0 {
		s.mu.Unlock()
		return Commit{}, ErrEmptyCommit
	}
	records := make([]Record, 0, len(s.staged))
	for id, m := range s.staged {
		records = append(records, Record{RegistrationID: id, Date: s.date, Status: m.Status, Remarks: m.Remarks})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].RegistrationID < records[j].RegistrationID })
	s.beginSaving()
	s.mu.Unlock()

	return s.finishCommit(ctx, records)
}

// CommitOne writes a single registration's attendance for today without
// requiring edit mode. Remarks follow the same rule as staged edits. A staged
// edit for the registration is replaced by the committed value.
func (s *Session) CommitOne(ctx context.Context, registrationID int64, status Status, remarks string) (Commit, error) {
	s.mu.Lock()
	if err := permit(s.state, opCommitOne); err != nil {
		s.mu.Unlock()
		return Commit{}, err
	}
	if s.date != s.today() {
		s.mu.Unlock()
		return Commit{}, ErrNotEditable
	}
	if _, ok := s.regs[registrationID]; !ok {
		s.mu.Unlock()
		return Commit{}, ErrUnknownRegistration
	}
	m, err := NewMark(status, remarks)
	if err != nil {
		s.mu.Unlock()
		return Commit{}, err
	}
	records := []Record{{RegistrationID: registrationID, Date: s.date, Status: m.Status, Remarks: m.Remarks}}
	s.beginSaving()
	s.mu.Unlock()

	return s.finishCommit(ctx, records)
}

// beginSaving must be called with s.mu held.
func (s *Session) beginSaving() {
	s.resume = s.state
	s.state = Saving
	s.savedAt = time.Time{}
	s.lastErr = nil
}

func (s *Session) finishCommit(ctx context.Context, records []Record) (Commit, error) {
	err := s.remote.CommitAttendance(ctx, records)
	s.obs.CommitCompleted(len(records), err)

	s.mu.Lock()
	s.state = s.resume
	log := s.log.WithField("date", s.date.String()).WithField("records", len(records))
	if err != nil {
		err = transportError("commit attendance", err)
		s.lastErr = err
		s.mu.Unlock()
		log.WithError(err).Warn("attendance commit failed, staged edits kept")
		return Commit{}, err
	}

	for _, r := range records {
		if _, ok := s.regs[r.RegistrationID]; !ok {
			continue
		}
		s.persisted[r.RegistrationID] = r.Mark()
		s.rev[r.RegistrationID]++
		delete(s.staged, r.RegistrationID)
		delete(s.fetchErrs, r.RegistrationID)
	}
	s.savedAt = s.now()
	c := Commit{ClassID: s.classID, Date: s.date, Records: records, CommittedAt: s.savedAt}
	onCommit := s.onCommit
	s.mu.Unlock()

	log.Info("attendance committed")
	if onCommit != nil {
		onCommit(c)
	}
	return c, nil
}
