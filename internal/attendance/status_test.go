package attendance

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMark(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		remarks string
		want    Mark
		wantErr error
	}{
		{name: "present", status: StatusPresent, want: Mark{Status: StatusPresent}},
		{name: "absent drops remarks", status: StatusAbsent, remarks: "sick", want: Mark{Status: StatusAbsent}},
		{name: "late with remarks", status: StatusLate, remarks: " bus delay ", want: Mark{Status: StatusLate, Remarks: "bus delay"}},
		{name: "excused with remarks", status: StatusExcused, remarks: "doctor", want: Mark{Status: StatusExcused, Remarks: "doctor"}},
		{name: "late without remarks", status: StatusLate, wantErr: ErrRemarksRequired},
		{name: "excused with blank remarks", status: StatusExcused, remarks: " \t", wantErr: ErrRemarksRequired},
		{name: "unknown status", status: "HOLIDAY", wantErr: ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMark(tt.status, tt.remarks)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestMark_Valid(t *testing.T) {
	assert.False(t, Mark{Status: StatusLate}.Valid())
	assert.False(t, Mark{Status: StatusPresent, Remarks: "note"}.Valid())
	assert.False(t, Mark{Status: "", Remarks: ""}.Valid())
	assert.True(t, Mark{Status: StatusExcused, Remarks: "note"}.Valid())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" late ")
	require.NoError(t, err)
	assert.Equal(t, StatusLate, st)
	assert.True(t, st.RequiresRemarks())

	_, err = ParseStatus("tardy")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestTransportError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := transportError("commit attendance", cause)

	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "commit attendance: dial tcp: refused", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Same(t, wrapped, transportError("other", wrapped), "already wrapped errors pass through")
	assert.False(t, IsTransport(ErrEmptyCommit))
}
