package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultPageSize matches the page size operators see on the roster screen.
const DefaultPageSize = 50

// SortField selects the key a View orders registrations by.
type SortField string

const (
	SortByName   SortField = "name"
	SortByStatus SortField = "status"
	SortByID     SortField = "id"
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ErrInvalidSort is returned for an unknown sort field or order.
var ErrInvalidSort = errors.New("invalid sort")

// ParseSortField validates a sort field name. Empty selects SortByName.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return SortByName, nil
	case SortByName, SortByStatus, SortByID:
		return f, nil
	default:
		return "", fmt.Errorf("%w: field %q", ErrInvalidSort, s)
	}
}

// ParseSortOrder validates a sort order. Empty selects Asc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return Asc, nil
	case Asc, Desc:
		return o, nil
	default:
		return "", fmt.Errorf("%w: order %q", ErrInvalidSort, s)
	}
}

// Page is one window of the filtered and sorted registrations.
type Page struct {
	Items      []Registration `json:"items"`
	Number     int            `json:"page"`
	Size       int            `json:"page_size"`
	TotalItems int            `json:"total_items"`
	TotalPages int            `json:"total_pages"`
}

// View holds a class roster plus the operator's filter, sort and page.
// It performs no I/O. A View is not safe for concurrent use.
type View struct {
	all      []Registration
	pageSize int

	query string
	field SortField
	order SortOrder
	page  int

	visible []Registration
}

// NewView builds a view sorted by name ascending, on page 1.
func NewView(regs []Registration, pageSize int) *View {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	v := &View{
		all:      append([]Registration(nil), regs...),
		pageSize: pageSize,
		field:    SortByName,
		order:    Asc,
		page:     1,
	}
	v.recompute()
	return v
}

// SetRegistrations replaces the roster, keeping filter and sort, and resets to page 1.
func (v *View) SetRegistrations(regs []Registration) {
	v.all = append(v.all[:0:0], regs...)
	v.page = 1
	v.recompute()
}

// SetFilter applies a case-insensitive substring match on first name,
// last name and enrollment status. A blank query disables filtering.
func (v *View) SetFilter(query string) {
	v.query = strings.TrimSpace(query)
	v.page = 1
	v.recompute()
}

// SetSort changes the ordering and resets to page 1.
func (v *View) SetSort(field SortField, order SortOrder) error {
	if _, err := ParseSortField(string(field)); err != nil {
		return err
	}
	if _, err := ParseSortOrder(string(order)); err != nil {
		return err
	}
	if field == "" {
		field = SortByName
	}
	if order == "" {
		order = Asc
	}
	v.field, v.order = field, order
	v.page = 1
	v.recompute()
	return nil
}

// Page moves to page n, clamped to [1, TotalPages], and returns it.
func (v *View) Page(n int) Page {
	v.page = clamp(n, 1, max(1, v.TotalPages()))
	return v.Current()
}

// Current returns the page the view is on.
func (v *View) Current() Page {
	start := (v.page - 1) * v.pageSize
	end := min(start+v.pageSize, len(v.visible))
	items := []Registration{}
	if start < end {
		items = append(items, v.visible[start:end]...)
	}
	return Page{
		Items:      items,
		Number:     v.page,
		Size:       v.pageSize,
		TotalItems: len(v.visible),
		TotalPages: v.TotalPages(),
	}
}

// Query returns the active filter.
func (v *View) Query() string { return v.query }

// Sort returns the active sort.
func (v *View) Sort() (SortField, SortOrder) { return v.field, v.order }

// Count is the number of registrations passing the filter.
func (v *View) Count() int { return len(v.visible) }

// TotalPages is ceil(Count/pageSize); zero for an empty result.
func (v *View) TotalPages() int {
	return (len(v.visible) + v.pageSize - 1) / v.pageSize
}

// Filtered returns every registration passing the filter, in sort order.
func (v *View) Filtered() []Registration {
	return append([]Registration(nil), v.visible...)
}

// All returns the unfiltered roster in its original order.
func (v *View) All() []Registration {
	return append([]Registration(nil), v.all...)
}

func (v *View) recompute() {
	visible := make([]Registration, 0, len(v.all))
	if v.query == "" {
		visible = append(visible, v.all...)
	} else {
		fold := cases.Fold()
		q := fold.String(v.query)
		for _, r := range v.all {
			if strings.Contains(fold.String(r.Student.FirstName), q) ||
				strings.Contains(fold.String(r.Student.LastName), q) ||
				strings.Contains(fold.String(r.Status), q) {
				visible = append(visible, r)
			}
		}
	}

	less := v.lessFunc(visible)
	sort.SliceStable(visible, less)
	v.visible = visible
}

// lessFunc compares precomputed keys; SliceStable keeps original order for ties
// in both directions.
func (v *View) lessFunc(regs []Registration) func(i, j int) bool {
	desc := v.order == Desc
	if v.field == SortByID {
		return func(i, j int) bool {
			if desc {
				return regs[i].ID > regs[j].ID
			}
			return regs[i].ID < regs[j].ID
		}
	}

	lower := cases.Lower(language.Und)
	keys := make(map[int64]string, len(regs))
	for _, r := range regs {
		switch v.field {
		case SortByStatus:
			keys[r.ID] = lower.String(r.Status)
		default:
			keys[r.ID] = lower.String(r.Student.FirstName + " " + r.Student.LastName)
		}
	}
	return func(i, j int) bool {
		a, b := keys[regs[i].ID], keys[regs[j].ID]
		if desc {
			return a > b
		}
		return a < b
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
