package util

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"25", "25", true},
		{" 025 ", "25", true},
		{"0", "", false},
		{"-4", "", false},
		{"pikachu", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := CanonicalID(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("CanonicalID(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIDFromURL(t *testing.T) {
	if got := IDFromURL("https://pokeapi.co/api/v2/pokemon-species/133/"); got != 133 {
		t.Fatalf("expected 133, got %d", got)
	}
	if got := IDFromURL("https://pokeapi.co/api/v2/pokemon/eevee"); got != 0 {
		t.Fatalf("expected 0 for non-numeric tail, got %d", got)
	}
	if got := IDFromURL(""); got != 0 {
		t.Fatalf("expected 0 for empty url, got %d", got)
	}
}

func TestDisplayNameAndFlavorText(t *testing.T) {
	if got := DisplayName("mr-mime"); got != "Mr Mime" {
		t.Fatalf("DisplayName: %q", got)
	}
	if got := CleanFlavorText("When several\nof these\fPOKéMON gather"); got != "When several of these POKéMON gather" {
		t.Fatalf("CleanFlavorText: %q", got)
	}
	if got := LanguageKey("EN"); got != "en" {
		t.Fatalf("LanguageKey: %q", got)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker("catalog", 2, 30*time.Second, zap.NewNop()).WithClock(func() time.Time { return now })

	cb.RecordFailure()
	if !cb.Allow() {
		t.Fatalf("breaker should stay closed below threshold")
	}
	cb.RecordFailure()
	if cb.State() != CircuitStateOpen || cb.Allow() {
		t.Fatalf("breaker should be open after threshold")
	}
	if cb.RetryAfter() != 30*time.Second {
		t.Fatalf("unexpected retry after %v", cb.RetryAfter())
	}

	now = now.Add(31 * time.Second)
	if !cb.Allow() {
		t.Fatalf("probe should be admitted after reset timeout")
	}
	if cb.Allow() {
		t.Fatalf("only one probe may run in half-open state")
	}
	cb.RecordSuccess()
	if cb.State() != CircuitStateClosed || !cb.Allow() {
		t.Fatalf("breaker should close after successful probe")
	}
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker("off", 0, time.Second, nil)
	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	if !cb.Allow() {
		t.Fatalf("disabled breaker must always allow")
	}
}
