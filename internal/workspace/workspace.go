package workspace

import (
	"context"
	"strings"
	"sync"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/roster"
)

// Key identifies one operator's workspace on one class.
type Key struct {
	Operator string
	ClassID  int64
}

// Backend is the remote side of a workspace: roster reads plus the
// attendance service.
type Backend interface {
	attendance.Remote
	FetchRegistrations(ctx context.Context, classID int64) ([]roster.Registration, error)
}

// Workspace pairs a class roster view with its attendance session.
type Workspace struct {
	Key

	backend Backend
	cred    *auth.Credential
	session *attendance.Session
	reloads context.Context
	now     func() time.Time

	mu       sync.Mutex
	view     *roster.View
	lastUsed time.Time
}

// Session returns the workspace's attendance session.
func (w *Workspace) Session() *attendance.Session {
	w.touch()
	return w.session
}

// RosterQuery selects a roster page. Empty Sort or Order keep the current
// value; Page 0 keeps the current page unless the filter or sort changed.
type RosterQuery struct {
	Query string
	Sort  roster.SortField
	Order roster.SortOrder
	Page  int
}

// Row is one roster line with its effective attendance, if any.
type Row struct {
	roster.Registration
	Attendance *attendance.Effective `json:"attendance"`
}

// RosterPage is a page of rows.
type RosterPage struct {
	Rows       []Row `json:"rows"`
	Number     int   `json:"page"`
	Size       int   `json:"page_size"`
	TotalItems int   `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// Roster applies q to the view and returns the selected page with each row's
// effective attendance.
func (w *Workspace) Roster(q RosterQuery) (RosterPage, error) {
	w.mu.Lock()
	w.lastUsed = w.now()
	if strings.TrimSpace(q.Query) != w.view.Query() {
		w.view.SetFilter(q.Query)
	}
	field, order := w.view.Sort()
	if q.Sort != "" {
		field = q.Sort
	}
	if q.Order != "" {
		order = q.Order
	}
	if cf, co := w.view.Sort(); cf != field || co != order {
		if err := w.view.SetSort(field, order); err != nil {
			w.mu.Unlock()
			return RosterPage{}, err
		}
	}
	var page roster.Page
	if q.Page > 0 {
		page = w.view.Page(q.Page)
	} else {
		page = w.view.Current()
	}
	w.mu.Unlock()

	effective := w.session.EffectiveAll()
	out := RosterPage{
		Rows:       make([]Row, 0, len(page.Items)),
		Number:     page.Number,
		Size:       page.Size,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	}
	for _, reg := range page.Items {
		row := Row{Registration: reg}
		if e, ok := effective[reg.ID]; ok {
			e := e
			row.Attendance = &e
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// VisibleIDs returns the registration ids matching the current filter, across
// all pages.
func (w *Workspace) VisibleIDs() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUsed = w.now()
	return roster.IDs(w.view.Filtered())
}

// MarkAllVisiblePresent stages PRESENT for every registration matching the
// current filter.
func (w *Workspace) MarkAllVisiblePresent() error {
	return w.session.MarkAllVisiblePresent(w.VisibleIDs())
}

// Refresh refetches the roster, replaces the registrations in the view and
// the session, and reloads persisted attendance.
func (w *Workspace) Refresh(ctx context.Context) (*attendance.Reload, error) {
	regs, err := w.backend.FetchRegistrations(ctx, w.ClassID)
	if err != nil {
		return nil, &attendance.TransportError{Op: "fetch registrations", Err: err}
	}
	w.mu.Lock()
	w.view.SetRegistrations(regs)
	w.lastUsed = w.now()
	w.mu.Unlock()

	w.session.SetRegistrations(regs)
	return w.session.Reload(w.reloads), nil
}

// Authorize records the operator's latest bearer token for later remote calls.
func (w *Workspace) Authorize(token string) {
	if token != "" && token != w.cred.Token() {
		w.cred.Set(token)
	}
	w.touch()
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastUsed = w.now()
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}
