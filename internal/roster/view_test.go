package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reg(id int64, first, last, status string) Registration {
	return Registration{
		ID:        id,
		StudentID: id * 100,
		Status:    status,
		Student:   Student{ID: id * 100, FirstName: first, LastName: last},
	}
}

func names(regs []Registration) []string {
	out := make([]string, 0, len(regs))
	for _, r := range regs {
		out = append(out, r.StudentName())
	}
	return out
}

func TestView_FilterMatchesFirstLastAndStatus(t *testing.T) {
	v := NewView([]Registration{
		reg(1, "Ana", "Silva", "ACTIVE"),
		reg(2, "Juma", "Nkosi", "ACTIVE"),
	}, 50)

	v.SetFilter("ana")
	assert.Equal(t, []string{"Ana Silva"}, names(v.Filtered()))

	v.SetFilter("NKOSI")
	assert.Equal(t, []string{"Juma Nkosi"}, names(v.Filtered()))

	v.SetFilter("active")
	assert.Len(t, v.Filtered(), 2)
}

func TestView_FilterIsCaseInsensitiveBeyondASCII(t *testing.T) {
	v := NewView([]Registration{
		reg(1, "Ângela", "Muianga", "ACTIVE"),
		reg(2, "Juma", "Nkosi", "ACTIVE"),
	}, 50)

	v.SetFilter("âNGELA")
	assert.Equal(t, []string{"Ângela Muianga"}, names(v.Filtered()))
}

func TestView_BlankFilterShowsEverything(t *testing.T) {
	v := NewView([]Registration{
		reg(1, "Ana", "Silva", "ACTIVE"),
		reg(2, "Juma", "Nkosi", "INACTIVE"),
	}, 50)

	v.SetFilter("zzz")
	require.Equal(t, 0, v.Count())

	v.SetFilter("   ")
	assert.Equal(t, 2, v.Count())
}

func TestView_SortByNameDesc(t *testing.T) {
	v := NewView([]Registration{
		reg(1, "Ana", "Silva", "ACTIVE"),
		reg(2, "Beto", "Tambo", "ACTIVE"),
	}, 50)

	require.NoError(t, v.SetSort(SortByName, Desc))
	assert.Equal(t, []string{"Beto Tambo", "Ana Silva"}, names(v.Filtered()))

	require.NoError(t, v.SetSort(SortByName, Asc))
	assert.Equal(t, []string{"Ana Silva", "Beto Tambo"}, names(v.Filtered()))
}

func TestView_SortIsCaseInsensitive(t *testing.T) {
	v := NewView([]Registration{
		reg(1, "beto", "tambo", "ACTIVE"),
		reg(2, "Ana", "Silva", "ACTIVE"),
	}, 50)

	assert.Equal(t, []string{"Ana Silva", "beto tambo"}, names(v.Filtered()))
}

func TestView_SortByIDIsNumeric(t *testing.T) {
	v := NewView([]Registration{
		reg(10, "A", "A", "ACTIVE"),
		reg(9, "B", "B", "ACTIVE"),
		reg(100, "C", "C", "ACTIVE"),
	}, 50)

	require.NoError(t, v.SetSort(SortByID, Asc))
	assert.Equal(t, []int64{9, 10, 100}, IDs(v.Filtered()))

	require.NoError(t, v.SetSort(SortByID, Desc))
	assert.Equal(t, []int64{100, 10, 9}, IDs(v.Filtered()))
}

func TestView_SortTiesKeepOriginalOrder(t *testing.T) {
	regs := []Registration{
		reg(3, "Ana", "Silva", "ACTIVE"),
		reg(1, "Beto", "Tambo", "INACTIVE"),
		reg(2, "Carla", "Mondlane", "ACTIVE"),
	}
	v := NewView(regs, 50)

	require.NoError(t, v.SetSort(SortByStatus, Asc))
	assert.Equal(t, []int64{3, 2, 1}, IDs(v.Filtered()))

	require.NoError(t, v.SetSort(SortByStatus, Desc))
	assert.Equal(t, []int64{1, 3, 2}, IDs(v.Filtered()))
}

func TestView_SetSortRejectsUnknownField(t *testing.T) {
	v := NewView(nil, 50)
	err := v.SetSort("age", Asc)
	require.ErrorIs(t, err, ErrInvalidSort)

	field, order := v.Sort()
	assert.Equal(t, SortByName, field)
	assert.Equal(t, Asc, order)
}

func TestView_Pagination(t *testing.T) {
	v := NewView([]Registration{
		reg(1, "A", "A", "ACTIVE"),
		reg(2, "B", "B", "ACTIVE"),
		reg(3, "C", "C", "ACTIVE"),
		reg(4, "D", "D", "ACTIVE"),
		reg(5, "E", "E", "ACTIVE"),
	}, 2)

	p := v.Page(1)
	assert.Equal(t, []int64{1, 2}, IDs(p.Items))
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 5, p.TotalItems)

	p = v.Page(3)
	assert.Equal(t, []int64{5}, IDs(p.Items))

	p = v.Page(99)
	assert.Equal(t, 3, p.Number)

	p = v.Page(-4)
	assert.Equal(t, 1, p.Number)
}

func TestView_FilterAndSortResetPage(t *testing.T) {
	v := NewView([]Registration{
		reg(1, "A", "A", "ACTIVE"),
		reg(2, "B", "B", "ACTIVE"),
		reg(3, "C", "C", "ACTIVE"),
	}, 1)

	v.Page(3)
	v.SetFilter("a")
	assert.Equal(t, 1, v.Current().Number)

	v.SetFilter("")
	v.Page(2)
	require.NoError(t, v.SetSort(SortByID, Desc))
	assert.Equal(t, 1, v.Current().Number)
}

func TestView_EmptyRoster(t *testing.T) {
	v := NewView(nil, 50)

	p := v.Page(5)
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, 0, p.TotalPages)
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
}

func TestView_SetRegistrationsKeepsFilter(t *testing.T) {
	v := NewView([]Registration{reg(1, "Ana", "Silva", "ACTIVE")}, 50)
	v.SetFilter("juma")
	require.Equal(t, 0, v.Count())

	v.SetRegistrations([]Registration{
		reg(1, "Ana", "Silva", "ACTIVE"),
		reg(2, "Juma", "Nkosi", "ACTIVE"),
	})
	assert.Equal(t, []int64{2}, IDs(v.Filtered()))
	assert.Len(t, v.All(), 2)
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		field, order string
		wantField    SortField
		wantOrder    SortOrder
		wantErr      bool
	}{
		{"", "", SortByName, Asc, false},
		{"NAME", "DESC", SortByName, Desc, false},
		{"status", "asc", SortByStatus, Asc, false},
		{"id", "desc", SortByID, Desc, false},
		{"email", "asc", "", "", true},
		{"id", "sideways", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.order, func(t *testing.T) {
			f, ferr := ParseSortField(tt.field)
			o, oerr := ParseSortOrder(tt.order)
			if tt.wantErr {
				assert.True(t, ferr != nil || oerr != nil)
				return
			}
			require.NoError(t, ferr)
			require.NoError(t, oerr)
			assert.Equal(t, tt.wantField, f)
			assert.Equal(t, tt.wantOrder, o)
		})
	}
}
