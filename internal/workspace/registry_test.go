package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/journal"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
)

type fakeBackend struct {
	mu       sync.Mutex
	cred     *auth.Credential
	regs     []roster.Registration
	regsErr  error
	records  map[int64][]attendance.Record
	commits  [][]attendance.Record
	regCalls int
	tokens   []string
}

func (b *fakeBackend) FetchRegistrations(ctx context.Context, classID int64) ([]roster.Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regCalls++
	b.tokens = append(b.tokens, b.cred.Token())
	if b.regsErr != nil {
		return nil, b.regsErr
	}
	return append([]roster.Registration(nil), b.regs...), nil
}

func (b *fakeBackend) FetchAttendance(ctx context.Context, studentID, classID int64, start, end attendance.Date) ([]attendance.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[studentID], nil
}

func (b *fakeBackend) CommitAttendance(ctx context.Context, records []attendance.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commits = append(b.commits, records)
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func reg(id int64, first, last string) roster.Registration {
	return roster.Registration{ID: id, StudentID: id * 100, Status: "ACTIVE", Student: roster.Student{ID: id * 100, FirstName: first, LastName: last}}
}

type fixture struct {
	backend *fakeBackend
	clock   *clock
	queue   *queue.InMemory
	reg     *Registry
	open    []int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &fixture{
		backend: &fakeBackend{
			regs: []roster.Registration{
				reg(1, "Ana", "Silva"),
				reg(2, "Rui", "Nkosi"),
				reg(3, "Ângela", "Costa"),
			},
			records: map[int64][]attendance.Record{
				100: {{Date: attendance.NewDate(2024, time.March, 7), Status: attendance.StatusLate, Remarks: "bus"}},
			},
		},
		clock: &clock{t: time.Date(2024, time.March, 7, 9, 0, 0, 0, time.UTC)},
		queue: queue.NewInMemory(8),
	}
	f.reg = NewRegistry(context.Background(), Options{
		Dial: func(cred *auth.Credential) Backend {
			f.backend.mu.Lock()
			f.backend.cred = cred
			f.backend.mu.Unlock()
			return f.backend
		},
		Publisher:   f.queue,
		Location:    time.UTC,
		Now:         f.clock.Now,
		PageSize:    2,
		Logger:      logrus.NewEntry(log),
		OpenChanged: func(n int) { f.open = append(f.open, n) },
	})
	return f
}

func (f *fixture) openLoaded(t *testing.T) *Workspace {
	t.Helper()
	ws, err := f.reg.Open(context.Background(), "op-7", 42, "tok-1")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ws.Session().Reload(ctx).Wait(ctx))
	return ws
}

func TestRegistry_OpenReusesWorkspace(t *testing.T) {
	f := newFixture(t)

	ws1, err := f.reg.Open(context.Background(), "op-7", 42, "tok-1")
	require.NoError(t, err)
	ws2, err := f.reg.Open(context.Background(), "op-7", 42, "tok-2")
	require.NoError(t, err)

	assert.Same(t, ws1, ws2)
	assert.Equal(t, 1, f.backend.regCalls)
	assert.Equal(t, "tok-2", f.backend.cred.Token(), "later token replaces the stored credential")
	assert.Equal(t, 1, f.reg.Len())
	assert.Equal(t, []int{1}, f.open)

	got, err := f.reg.Get("op-7", 42)
	require.NoError(t, err)
	assert.Same(t, ws1, got)

	_, err = f.reg.Get("op-8", 42)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestRegistry_OpenFailsOnRosterError(t *testing.T) {
	f := newFixture(t)
	f.backend.regsErr = errors.New("401 unauthorized")

	_, err := f.reg.Open(context.Background(), "op-7", 42, "tok-1")
	require.Error(t, err)
	assert.True(t, attendance.IsTransport(err))
	assert.Equal(t, 0, f.reg.Len())
}

func TestWorkspace_RosterJoinsEffectiveAttendance(t *testing.T) {
	f := newFixture(t)
	ws := f.openLoaded(t)

	page, err := ws.Roster(RosterQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Rows, 2)

	// default sort is by lower-cased name: "ana silva", "rui nkosi", "ângela costa"
	assert.Equal(t, int64(1), page.Rows[0].ID)
	assert.Equal(t, int64(2), page.Rows[1].ID)
	require.NotNil(t, page.Rows[0].Attendance)
	assert.Equal(t, attendance.SourcePersisted, page.Rows[0].Attendance.Source)
	assert.Equal(t, "bus", page.Rows[0].Attendance.Remarks)
	assert.Nil(t, page.Rows[1].Attendance)

	page, err = ws.Roster(RosterQuery{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Number)

	page, err = ws.Roster(RosterQuery{Query: "nkosi"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number, "filter change resets the page")
	assert.Equal(t, 1, page.TotalItems)

	_, err = ws.Roster(RosterQuery{Sort: "age"})
	assert.ErrorIs(t, err, roster.ErrInvalidSort)
}

func TestWorkspace_RosterPaddedQueryKeepsPage(t *testing.T) {
	f := newFixture(t)
	ws := f.openLoaded(t)

	page, err := ws.Roster(RosterQuery{Query: " ", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Number)

	page, err = ws.Roster(RosterQuery{Query: "  "})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Number, "same filter after trimming")

	_, err = ws.Roster(RosterQuery{Query: " nkosi "})
	require.NoError(t, err)
	page, err = ws.Roster(RosterQuery{Query: "nkosi  "})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItems)
	assert.Equal(t, 1, page.Number)
}

func TestWorkspace_MarkAllVisiblePresentUsesFilter(t *testing.T) {
	f := newFixture(t)
	ws := f.openLoaded(t)
	require.NoError(t, ws.Session().EnterEditMode())

	_, err := ws.Roster(RosterQuery{Query: "o"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, ws.VisibleIDs())

	require.NoError(t, ws.MarkAllVisiblePresent())
	assert.Equal(t, map[int64]attendance.Mark{
		2: {Status: attendance.StatusPresent},
		3: {Status: attendance.StatusPresent},
	}, ws.Session().Staged())
}

func TestWorkspace_CommitPublishesJournalEvent(t *testing.T) {
	f := newFixture(t)
	ws := f.openLoaded(t)
	s := ws.Session()
	require.NoError(t, s.EnterEditMode())
	require.NoError(t, s.Stage(2, attendance.StatusExcused, "clinic"))

	_, err := s.Commit(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := f.queue.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		evt, err := journal.Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, "op-7", evt.Operator)
		assert.Equal(t, int64(42), evt.ClassID)
		assert.Equal(t, []journal.Entry{{RegistrationID: 2, Status: attendance.StatusExcused, Remarks: "clinic"}}, evt.Entries)
	case <-ctx.Done():
		t.Fatal("no commit event published")
	}
}

func TestWorkspace_RefreshDropsVanishedRegistrations(t *testing.T) {
	f := newFixture(t)
	ws := f.openLoaded(t)
	require.NoError(t, ws.Session().EnterEditMode())
	require.NoError(t, ws.Session().Stage(3, attendance.StatusAbsent, ""))

	f.backend.mu.Lock()
	f.backend.regs = f.backend.regs[:2]
	f.backend.mu.Unlock()

	r, err := ws.Refresh(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Wait(context.Background()))

	assert.Empty(t, ws.Session().Staged())
	page, err := ws.Roster(RosterQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems)
}

func TestRegistry_Rollover(t *testing.T) {
	f := newFixture(t)
	ws := f.openLoaded(t)
	require.NoError(t, ws.Session().EnterEditMode())
	require.NoError(t, ws.Session().Stage(1, attendance.StatusPresent, ""))

	assert.Equal(t, 0, f.reg.Rollover())

	f.clock.Advance(24 * time.Hour)
	assert.Equal(t, 1, f.reg.Rollover())
	assert.Equal(t, attendance.Viewing, ws.Session().State())
	assert.Empty(t, ws.Session().Staged())
}

func TestRegistry_EvictIdle(t *testing.T) {
	f := newFixture(t)
	f.openLoaded(t)
	_, err := f.reg.Open(context.Background(), "op-8", 42, "tok-8")
	require.NoError(t, err)

	f.clock.Advance(90 * time.Minute)
	ws, err := f.reg.Get("op-8", 42)
	require.NoError(t, err)
	ws.Authorize("tok-8")

	f.clock.Advance(45 * time.Minute)
	assert.Equal(t, 1, f.reg.EvictIdle(2*time.Hour))

	_, err = f.reg.Get("op-7", 42)
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = f.reg.Get("op-8", 42)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1}, f.open)
}

func TestRegistry_Close(t *testing.T) {
	f := newFixture(t)
	f.openLoaded(t)

	assert.True(t, f.reg.Close("op-7", 42))
	assert.False(t, f.reg.Close("op-7", 42))
	assert.Equal(t, 0, f.reg.Len())
}
