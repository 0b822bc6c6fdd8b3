package attendance

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rollcall/internal/logger"
	"rollcall/internal/roster"
)

const (
	defaultFetchConcurrency = 8
	defaultSuccessDisplay   = 3 * time.Second
)

// Source says which layer an effective mark came from.
type Source string

const (
	SourceStaged    Source = "staged"
	SourcePersisted Source = "persisted"
)

// Effective is the mark shown to the operator for one registration.
type Effective struct {
	Mark
	Source Source `json:"source"`
}

// Pending is a LATE or EXCUSED choice waiting for remarks. It is not part of
// the staged layer until confirmed.
type Pending struct {
	RegistrationID int64  `json:"registration_id"`
	Status         Status `json:"status"`
}

// Commit describes a successful write, handed to Options.OnCommit.
type Commit struct {
	ClassID     int64
	Date        Date
	Records     []Record
	CommittedAt time.Time
}

// Options configures a Session.
type Options struct {
	ClassID       int64
	Remote        Remote
	Registrations []roster.Registration

	// Location defines "today". Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time

	// FetchConcurrency bounds in-flight per-registration fetches during a reload.
	FetchConcurrency int
	// SuccessDisplay is how long Snapshot reports a commit as just saved.
	SuccessDisplay time.Duration

	Logger   *logrus.Entry
	Observer Observer
	// OnCommit runs after a successful commit has been folded into the
	// persisted layer, outside the session lock.
	OnCommit func(Commit)
}

// Session is the attendance edit session for one class. All methods are safe
// for concurrent use; remote calls run without holding the lock.
type Session struct {
	mu sync.Mutex

	classID        int64
	remote         Remote
	loc            *time.Location
	now            func() time.Time
	fetchLimit     int
	successDisplay time.Duration
	log            *logrus.Entry
	obs            Observer
	onCommit       func(Commit)

	regs  map[int64]roster.Registration
	order []int64

	date   Date
	state  State
	resume State // state to return to when a commit finishes

	// gen identifies the current reload; results from older reloads are stale.
	gen       uint64
	loading   bool
	persisted map[int64]Mark
	// rev counts commit promotions per registration so a fetch issued before
	// a promotion cannot overwrite it.
	rev       map[int64]uint64
	fetchErrs map[int64]error

	staged  map[int64]Mark
	pending *Pending

	savedAt time.Time
	lastErr error
}

// NewSession opens a session on today's date in Viewing. The persisted layer
// is empty until Reload or SelectDate is called.
func NewSession(opts Options) *Session {
	s := &Session{
		classID:        opts.ClassID,
		remote:         opts.Remote,
		loc:            opts.Location,
		now:            opts.Now,
		fetchLimit:     opts.FetchConcurrency,
		successDisplay: opts.SuccessDisplay,
		log:            opts.Logger,
		obs:            opts.Observer,
		onCommit:       opts.OnCommit,
		state:          Viewing,
		persisted:      make(map[int64]Mark),
		rev:            make(map[int64]uint64),
		fetchErrs:      make(map[int64]error),
		staged:         make(map[int64]Mark),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.fetchLimit <= 0 {
		s.fetchLimit = defaultFetchConcurrency
	}
	if s.successDisplay <= 0 {
		s.successDisplay = defaultSuccessDisplay
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logger.Log)
	}
	s.log = s.log.WithField("class_id", opts.ClassID)
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	s.setRegistrations(opts.Registrations)
	s.date = s.today()
	return s
}

func (s *Session) today() Date { return Today(s.now(), s.loc) }

// ClassID returns the class this session edits.
func (s *Session) ClassID() int64 { return s.classID }

// SetRegistrations replaces the known registrations. Staged and persisted
// entries for registrations no longer present are dropped. Call Reload to
// fetch attendance for newly added ones.
func (s *Session) SetRegistrations(regs []roster.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRegistrations(regs)
	for id := range s.staged {
		if _, ok := s.regs[id]; !ok {
			delete(s.staged, id)
		}
	}
	for id := range s.persisted {
		if _, ok := s.regs[id]; !ok {
			delete(s.persisted, id)
		}
	}
	for id := range s.fetchErrs {
		if _, ok := s.regs[id]; !ok {
			delete(s.fetchErrs, id)
		}
	}
	if s.pending != nil {
		if _, ok := s.regs[s.pending.RegistrationID]; !ok {
			s.pending = nil
		}
	}
}

func (s *Session) setRegistrations(regs []roster.Registration) {
	s.regs = make(map[int64]roster.Registration, len(regs))
	s.order = s.order[:0]
	for _, r := range regs {
		if _, dup := s.regs[r.ID]; dup {
			continue
		}
		s.regs[r.ID] = r
		s.order = append(s.order, r.ID)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Date returns the selected date.
func (s *Session) Date() Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date
}

// EnterEditMode starts editing. Only today's attendance is editable.
func (s *Session) EnterEditMode() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := permit(s.state, opEnterEdit); err != nil {
		return err
	}
	if s.date != s.today() {
		return ErrNotEditable
	}
	s.state = Editing
	return nil
}

// ExitEditMode discards every staged edit and any pending selection and
// returns to Viewing.
func (s *Session) ExitEditMode() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := permit(s.state, opExitEdit); err != nil {
		return err
	}
	s.discardStaged()
	s.state = Viewing
	return nil
}

// Rollover leaves edit mode when the selected date is no longer today, for
// sessions left open across midnight. It reports whether anything changed.
func (s *Session) Rollover() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing || s.date == s.today() {
		return false
	}
	s.discardStaged()
	s.state = Viewing
	s.log.WithField("date", s.date.String()).Info("selected date rolled over, left edit mode")
	return true
}

// SetStatus stages PRESENT or ABSENT immediately with empty remarks. LATE and
// EXCUSED are held as a pending selection instead and reported with
// pending == true; ConfirmRemarks or CancelRemarks resolves it.
func (s *Session) SetStatus(registrationID int64, status Status) (pending bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStage(registrationID); err != nil {
		return false, err
	}
	if !status.Valid() {
		return false, ErrInvalidStatus
	}
	if status.RequiresRemarks() {
		s.pending = &Pending{RegistrationID: registrationID, Status: status}
		return true, nil
	}
	s.staged[registrationID] = Mark{Status: status}
	s.clearPendingFor(registrationID)
	return false, nil
}

// PendingSelection returns the selection waiting for remarks, if any.
func (s *Session) PendingSelection() (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, false
	}
	return *s.pending, true
}

// ConfirmRemarks writes the pending status and remarks into the staged layer
// as a single update. Blank remarks fail with ErrRemarksRequired and keep the
// selection pending.
func (s *Session) ConfirmRemarks(remarks string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditable(opStage); err != nil {
		return err
	}
	if s.pending == nil {
		return ErrNoPendingSelection
	}
	m, err := NewMark(s.pending.Status, remarks)
	if err != nil {
		return err
	}
	s.staged[s.pending.RegistrationID] = m
	s.pending = nil
	return nil
}

// CancelRemarks drops the pending selection without touching the staged layer.
func (s *Session) CancelRemarks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Stage validates status and remarks together and writes them in one step.
func (s *Session) Stage(registrationID int64, status Status, remarks string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStage(registrationID); err != nil {
		return err
	}
	m, err := NewMark(status, remarks)
	if err != nil {
		return err
	}
	s.staged[registrationID] = m
	s.clearPendingFor(registrationID)
	return nil
}

// MarkAllVisiblePresent stages PRESENT for exactly the given registrations,
// replacing their earlier staged edits. Other staged edits are kept.
func (s *Session) MarkAllVisiblePresent(registrationIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditable(opStage); err != nil {
		return err
	}
	for _, id := range registrationIDs {
		if _, ok := s.regs[id]; !ok {
			return ErrUnknownRegistration
		}
	}
	for _, id := range registrationIDs {
		s.staged[id] = Mark{Status: StatusPresent}
		s.clearPendingFor(id)
	}
	return nil
}

// Effective returns the staged mark if present, else the persisted one.
func (s *Session) Effective(registrationID int64) (Effective, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effective(registrationID)
}

// EffectiveAll returns the effective mark of every registration that has one.
func (s *Session) EffectiveAll() map[int64]Effective {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]Effective, len(s.order))
	for _, id := range s.order {
		if e, ok := s.effective(id); ok {
			out[id] = e
		}
	}
	return out
}

func (s *Session) effective(id int64) (Effective, bool) {
	if m, ok := s.staged[id]; ok {
		return Effective{Mark: m, Source: SourceStaged}, true
	}
	if m, ok := s.persisted[id]; ok {
		return Effective{Mark: m, Source: SourcePersisted}, true
	}
	return Effective{}, false
}

// Staged returns a copy of the staged layer.
func (s *Session) Staged() map[int64]Mark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMarks(s.staged)
}

// Persisted returns a copy of the persisted layer for the selected date.
func (s *Session) Persisted() map[int64]Mark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMarks(s.persisted)
}

// Snapshot is a read-only view of the session for presentation.
type Snapshot struct {
	ClassID       int64    `json:"class_id"`
	Date          Date     `json:"date"`
	Today         Date     `json:"today"`
	State         State    `json:"state"`
	Editable      bool     `json:"editable"`
	Loading       bool     `json:"loading"`
	StagedCount   int      `json:"staged_count"`
	Pending       *Pending `json:"pending,omitempty"`
	SaveSucceeded bool     `json:"save_succeeded"`
	LastError     string   `json:"last_error,omitempty"`
	FetchFailures []int64  `json:"fetch_failures,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := s.today()
	snap := Snapshot{
		ClassID:     s.classID,
		Date:        s.date,
		Today:       today,
		State:       s.state,
		Editable:    s.date == today,
		Loading:     s.loading,
		StagedCount: len(s.staged),
	}
	if s.pending != nil {
		p := *s.pending
		snap.Pending = &p
	}
	if !s.savedAt.IsZero() && s.now().Sub(s.savedAt) < s.successDisplay {
		snap.SaveSucceeded = true
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	for id := range s.fetchErrs {
		snap.FetchFailures = append(snap.FetchFailures, id)
	}
	sort.Slice(snap.FetchFailures, func(i, j int) bool { return snap.FetchFailures[i] < snap.FetchFailures[j] })
	return snap
}

// FetchError returns the last persisted-layer fetch failure for a registration.
func (s *Session) FetchError(registrationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErrs[registrationID]
}

// checkEditable guards operations that need Editing on today's date. A
// session left editing past midnight stops accepting edits before Rollover
// runs.
func (s *Session) checkEditable(op operation) error {
	if err := permit(s.state, op); err != nil {
		return err
	}
	if s.date != s.today() {
		return ErrNotEditable
	}
	return nil
}

func (s *Session) checkStage(id int64) error {
	if err := s.checkEditable(opStage); err != nil {
		return err
	}
	if _, ok := s.regs[id]; !ok {
		return ErrUnknownRegistration
	}
	return nil
}

func (s *Session) clearPendingFor(id int64) {
	if s.pending != nil && s.pending.RegistrationID == id {
		s.pending = nil
	}
}

func (s *Session) discardStaged() {
	s.staged = make(map[int64]Mark)
	s.pending = nil
}

func copyMarks(in map[int64]Mark) map[int64]Mark {
	out := make(map[int64]Mark, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

