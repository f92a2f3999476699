package syncer

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{"初回失敗は30秒", 1, 30 * time.Second},
		{"2回目は1分", 2, time.Minute},
		{"3回目は2分", 3, 2 * time.Minute},
		{"5回目は8分", 5, 8 * time.Minute},
		{"上限は1時間", 20, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateBackoff(tt.attempts); got != tt.want {
				t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.attempts, got, tt.want)
			}
		})
	}
}
