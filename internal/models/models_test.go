package models

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	t.Parallel()

	est := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "truncates time of day",
			in:   time.Date(2024, 1, 15, 23, 59, 59, 999, time.UTC),
			want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "normalizes zone to UTC",
			in:   time.Date(2024, 1, 15, 22, 0, 0, 0, est),
			want: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "midnight is a fixed point",
			in:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Day(tt.in); !got.Equal(tt.want) {
				t.Errorf("Day(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
