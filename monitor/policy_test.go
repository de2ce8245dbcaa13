package monitor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/monitor"
)

func TestStandardPolicy(t *testing.T) {
	tests := []struct {
		name    string
		stored  seatsnatch.Section
		fetched seatsnatch.Counts
		want    int
	}{
		{
			name:    "two seats open up",
			stored:  seatsnatch.Section{Enrollment: 20, Capacity: 20},
			fetched: seatsnatch.Counts{Enrollment: 18, Capacity: 20},
			want:    2,
		},
		{
			name:    "nothing changed",
			stored:  seatsnatch.Section{Enrollment: 20, Capacity: 20},
			fetched: seatsnatch.Counts{Enrollment: 20, Capacity: 20},
			want:    0,
		},
		{
			name:    "section fills up",
			stored:  seatsnatch.Section{Enrollment: 18, Capacity: 20},
			fetched: seatsnatch.Counts{Enrollment: 20, Capacity: 20},
			want:    0,
		},
		{
			name:    "headroom grows on an already open section",
			stored:  seatsnatch.Section{Enrollment: 18, Capacity: 20},
			fetched: seatsnatch.Counts{Enrollment: 15, Capacity: 20},
			want:    3,
		},
		{
			name:    "over-enrolled section clamps to zero headroom",
			stored:  seatsnatch.Section{Enrollment: 22, Capacity: 20},
			fetched: seatsnatch.Counts{Enrollment: 19, Capacity: 20},
			want:    1,
		},
		{
			name:    "capacity raise opens seats without drops",
			stored:  seatsnatch.Section{Enrollment: 20, Capacity: 20},
			fetched: seatsnatch.Counts{Enrollment: 20, Capacity: 25},
			want:    5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := monitor.StandardPolicy{}.ComputeOpening(tt.stored, tt.fetched)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReservedSeatPolicy(t *testing.T) {
	tests := []struct {
		name    string
		stored  seatsnatch.Section
		fetched seatsnatch.Counts
		want    int
	}{
		{
			name:    "enrollment rises above the marker",
			stored:  seatsnatch.Section{PrevEnrollment: 5},
			fetched: seatsnatch.Counts{Enrollment: 8, Capacity: 30},
			want:    3,
		},
		{
			name:    "enrollment unchanged",
			stored:  seatsnatch.Section{PrevEnrollment: 5},
			fetched: seatsnatch.Counts{Enrollment: 5, Capacity: 30},
			want:    0,
		},
		{
			name:    "enrollment dropping is not an opening",
			stored:  seatsnatch.Section{PrevEnrollment: 5},
			fetched: seatsnatch.Counts{Enrollment: 3, Capacity: 30},
			want:    0,
		},
		{
			name:    "fresh marker counts the full enrollment",
			stored:  seatsnatch.Section{PrevEnrollment: 0},
			fetched: seatsnatch.Counts{Enrollment: 4, Capacity: 30},
			want:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := monitor.ReservedSeatPolicy{}.ComputeOpening(tt.stored, tt.fetched)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyFor(t *testing.T) {
	assert.IsType(t, monitor.StandardPolicy{}, monitor.PolicyFor(seatsnatch.Course{}))
	assert.IsType(t, monitor.ReservedSeatPolicy{}, monitor.PolicyFor(seatsnatch.Course{HasReservedSeats: true}))
}
