package attendance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Reload tracks one fan-out of persisted-layer fetches.
type Reload struct {
	Date Date
	done chan struct{}
}

// Done is closed once every fetch of the reload has finished or been discarded.
func (r *Reload) Done() <-chan struct{} { return r.done }

// Wait blocks until the reload finishes or ctx ends.
func (r *Reload) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectDate switches to date, discarding staged edits and leaving edit mode,
// then reloads the persisted layer in the background. Dates after today fail
// with ErrInvalidDate. ctx bounds the background fetches, so it should
// outlive the caller's request.
func (s *Session) SelectDate(ctx context.Context, date Date) (*Reload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := permit(s.state, opSelectDate); err != nil {
		return nil, err
	}
	if date.IsZero() || date.After(s.today()) {
		return nil, ErrInvalidDate
	}
	s.discardStaged()
	s.state = Viewing
	s.date = date
	s.persisted = make(map[int64]Mark)
	s.fetchErrs = make(map[int64]error)
	s.savedAt = time.Time{}
	s.lastErr = nil
	return s.startReload(ctx), nil
}

// Reload refetches the persisted layer for the selected date, keeping
// staged edits. Earlier reloads still in flight become stale.
func (s *Session) Reload(ctx context.Context) *Reload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startReload(ctx)
}

// RetryFetch refetches one registration's persisted record for the selected
// date and returns the transport error, if any.
func (s *Session) RetryFetch(ctx context.Context, registrationID int64) error {
	s.mu.Lock()
	if err := permit(s.state, opRetryFetch); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.regs[registrationID]; !ok {
		s.mu.Unlock()
		return ErrUnknownRegistration
	}
	gen, date := s.gen, s.date
	s.mu.Unlock()
	return s.fetchOne(ctx, gen, date, registrationID)
}

// startReload must be called with s.mu held.
func (s *Session) startReload(ctx context.Context) *Reload {
	s.gen++
	s.loading = true
	gen, date := s.gen, s.date
	ids := append([]int64(nil), s.order...)
	r := &Reload{Date: date, done: make(chan struct{})}

	s.log.WithField("date", date.String()).WithField("registrations", len(ids)).Debug("reloading persisted attendance")

	go func() {
		defer close(r.done)
		var g errgroup.Group
		g.SetLimit(s.fetchLimit)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				// per-registration failures are recorded, never fatal
				_ = s.fetchOne(ctx, gen, date, id)
				return nil
			})
		}
		_ = g.Wait()

		s.mu.Lock()
		if s.gen == gen {
			s.loading = false
		}
		s.mu.Unlock()
	}()
	return r
}

// fetchOne loads one registration's record and merges it into the persisted
// layer unless the session has since moved to another reload or date, or a
// commit has promoted a newer value for that registration.
func (s *Session) fetchOne(ctx context.Context, gen uint64, date Date, id int64) error {
	s.mu.Lock()
	reg, ok := s.regs[id]
	rev := s.rev[id]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownRegistration
	}

	records, err := s.remote.FetchAttendance(ctx, reg.StudentID, s.classID, date, date)
	s.obs.FetchCompleted(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.log.WithField("registration_id", id).WithField("date", date.String())
	if gen != s.gen || date != s.date || rev != s.rev[id] {
		s.obs.StaleDiscarded()
		log.Debug("discarding stale attendance fetch")
		if err != nil {
			return transportError("fetch attendance", err)
		}
		return nil
	}
	if err != nil {
		err = transportError("fetch attendance", err)
		s.fetchErrs[id] = err
		delete(s.persisted, id)
		log.WithError(err).Warn("attendance fetch failed")
		return err
	}
	delete(s.fetchErrs, id)

	rec, found := recordFor(records, date)
	if !found {
		delete(s.persisted, id)
		return nil
	}
	m := rec.Mark()
	if !m.Valid() {
		log.WithField("status", m.Status).Warn("persisted record violates the remarks rule")
	}
	s.persisted[id] = m
	return nil
}

func recordFor(records []Record, date Date) (Record, bool) {
	for _, r := range records {
		if r.Date == date {
			return r, true
		}
	}
	return Record{}, false
}
