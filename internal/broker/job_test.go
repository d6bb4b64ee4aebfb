package broker

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusQueued, false},
		{StatusStarted, false},
		{StatusFinished, true},
		{StatusFailed, true},
		{StatusTimedOut, true},
		{StatusUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobTimeout(t *testing.T) {
	job := &Job{TimeoutSeconds: 90}
	if got := job.Timeout(); got != 90*time.Second {
		t.Errorf("Timeout() = %v, want 90s", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	got := parseTime(formatTime(now))
	if !got.Equal(now) {
		t.Errorf("parseTime(formatTime(t)) = %v, want %v", got, now)
	}
}

func TestParseTimeEmpty(t *testing.T) {
	if got := parseTime(""); !got.IsZero() {
		t.Errorf("parseTime(\"\") = %v, want zero", got)
	}
	if got := parseTime("garbage"); !got.IsZero() {
		t.Errorf("parseTime(garbage) = %v, want zero", got)
	}
}
