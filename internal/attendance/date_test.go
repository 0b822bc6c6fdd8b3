package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2024-03-07", want: NewDate(2024, time.March, 7)},
		{in: "2024-03-07T00:00:00Z", want: NewDate(2024, time.March, 7)},
		{in: "2024-03-07T23:59:59+02:00", want: NewDate(2024, time.March, 7)},
		{in: "2024-3-7", wantErr: true},
		{in: "2024-02-30", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToday_UsesLocation(t *testing.T) {
	maputo, err := time.LoadLocation("Africa/Maputo")
	require.NoError(t, err)

	// 23:30 UTC is already the next day at UTC+2.
	now := time.Date(2024, time.March, 7, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, NewDate(2024, time.March, 7), Today(now, time.UTC))
	assert.Equal(t, NewDate(2024, time.March, 8), Today(now, maputo))
}

func TestDate_Arithmetic(t *testing.T) {
	d := NewDate(2024, time.February, 28)

	assert.Equal(t, NewDate(2024, time.February, 29), d.AddDays(1))
	assert.Equal(t, NewDate(2024, time.March, 1), d.AddDays(2))
	assert.Equal(t, NewDate(2023, time.December, 31), NewDate(2024, time.January, 1).AddDays(-1))

	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(40).After(d))
	assert.Equal(t, 0, d.Compare(NewDate(2024, time.February, 28)))
	assert.Equal(t, -1, d.Compare(NewDate(2024, time.March, 1)))
	assert.Equal(t, 1, d.Compare(NewDate(2023, time.December, 31)))
	assert.Equal(t, 1, NewDate(2024, time.February, 29).Compare(d))
	assert.Equal(t, NewDate(2024, time.March, 2), NewDate(2024, time.February, 31))
}

func TestDate_JSON(t *testing.T) {
	r := Record{RegistrationID: 9, Date: NewDate(2024, time.March, 7), Status: StatusLate, Remarks: "bus delay"}

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"registration_id":9,"date":"2024-03-07","status":"LATE","remarks":"bus delay"}`, string(b))

	var back Record
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-03-07T00:00:00Z","status":"PRESENT","remarks":""}`), &back))
	assert.Equal(t, NewDate(2024, time.March, 7), back.Date)

	var zero Date
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.String())
}
