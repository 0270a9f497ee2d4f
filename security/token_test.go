package security

import (
	"regexp"
	"testing"
	"time"
)

func TestGenerateToken(t *testing.T) {
	hexPattern := regexp.MustCompile(`^[0-9a-f]{40}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := GenerateToken()
		if !hexPattern.MatchString(token) {
			t.Fatalf("token %q is not 40 lowercase hex characters", token)
		}
		if seen[token] {
			t.Fatalf("token %q generated twice", token)
		}
		seen[token] = true
	}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now}

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future deadline", now.Add(time.Minute), false},
		{"past deadline", now.Add(-time.Minute), true},
		{"zero deadline never expires", time.Time{}, false},
		{"exact deadline not yet expired", now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(clock, tt.expiresAt); got != tt.want {
				t.Errorf("IsExpired(%v) = %v, want %v", tt.expiresAt, got, tt.want)
			}
		})
	}
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	got := SystemClock{}.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("SystemClock.Now() = %v, outside [%v, %v]", got, before, after)
	}
}
