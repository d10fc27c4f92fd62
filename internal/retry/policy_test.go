package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayFirstAttemptIsZero(t *testing.T) {
	p := Default()
	rng := rand.New(rand.NewSource(1))
	if d := p.Delay(1, rng); d != 0 {
		t.Fatalf("attempt 1 delay = %v, want 0", d)
	}
}

func TestDelayGrowsWithMultiplier(t *testing.T) {
	p := Policy{BaseDelay: time.Second, Multiplier: 2.0, JitterFraction: 0, Ceiling: time.Hour}
	rng := rand.New(rand.NewSource(1))
	d2 := p.Delay(2, rng)
	d3 := p.Delay(3, rng)
	if d2 != time.Second {
		t.Fatalf("attempt 2 delay = %v, want 1s", d2)
	}
	if d3 != 2*time.Second {
		t.Fatalf("attempt 3 delay = %v, want 2s", d3)
	}
}

func TestDelayRespectsCeiling(t *testing.T) {
	p := Policy{BaseDelay: time.Minute, Multiplier: 10, JitterFraction: 0, Ceiling: 5 * time.Second}
	rng := rand.New(rand.NewSource(1))
	if d := p.Delay(5, rng); d > 5*time.Second {
		t.Fatalf("delay %v exceeds ceiling", d)
	}
}

func TestHasAttemptsRemaining(t *testing.T) {
	p := Default().WithRetries(2)
	if p.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if !p.HasAttemptsRemaining(1) {
		t.Fatal("expected attempts remaining after 1 used")
	}
	if !p.HasAttemptsRemaining(2) {
		t.Fatal("expected attempts remaining after 2 used")
	}
	if p.HasAttemptsRemaining(3) {
		t.Fatal("expected no attempts remaining after 3 used")
	}
}
