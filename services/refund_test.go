package services

import (
	"testing"
	"time"
)

func TestRefundAmountTiers(t *testing.T) {
	departure := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		before time.Duration
		total  int64
		want   int64
	}{
		{"two days out", 48 * time.Hour, 10000, 9000},
		{"exactly 24h", 24 * time.Hour, 10000, 9000},
		{"just under 24h", 24*time.Hour - time.Second, 10000, 7000},
		{"exactly 12h", 12 * time.Hour, 10000, 7000},
		{"just under 12h", 12*time.Hour - time.Second, 10000, 5000},
		{"exactly 6h", 6 * time.Hour, 10000, 5000},
		{"five hours", 5 * time.Hour, 8000, 2000},
		{"exactly 2h", 2 * time.Hour, 10000, 2500},
		{"just under 2h", 2*time.Hour - time.Second, 10000, 0},
		{"after departure", -time.Hour, 10000, 0},
		{"rounds half up", 3 * time.Hour, 1002, 251},
		{"rounds down below half", 3 * time.Hour, 1001, 250},
		{"zero total", 48 * time.Hour, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RefundAmount(tc.total, departure, departure.Add(-tc.before))
			if got != tc.want {
				t.Fatalf("RefundAmount(%d, %s before) = %d, want %d", tc.total, tc.before, got, tc.want)
			}
		})
	}
}
