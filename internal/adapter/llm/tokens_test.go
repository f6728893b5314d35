package llm

import "testing"

func TestEstimatorEmptyText(t *testing.T) {
	e := NewEstimator()
	if got := e.Estimate("gpt-4o-mini", ""); got != 0 {
		t.Errorf("Estimate(empty) = %d, want 0", got)
	}
}

func TestEstimatorPositiveForText(t *testing.T) {
	e := NewEstimator()
	text := "Draft the quarterly report and circulate it to the leadership team."

	got := e.Estimate("gpt-4o-mini", text)
	if got <= 0 {
		t.Errorf("Estimate = %d, want > 0", got)
	}
	// Either path (encoding or heuristic) lands well below one token per byte.
	if got > int64(len(text)) {
		t.Errorf("Estimate = %d, exceeds byte count %d", got, len(text))
	}
}

func TestEstimatorDeterministic(t *testing.T) {
	e := NewEstimator()
	text := "The same text always costs the same."

	first := e.Estimate("some-unknown-model", text)
	second := e.Estimate("some-unknown-model", text)
	if first != second {
		t.Errorf("Estimate not deterministic: %d then %d", first, second)
	}
}

func TestEstimatorScalesWithLength(t *testing.T) {
	e := NewEstimator()

	short := e.Estimate("some-unknown-model", "one two three")
	long := e.Estimate("some-unknown-model",
		"one two three four five six seven eight nine ten eleven twelve thirteen fourteen")
	if long <= short {
		t.Errorf("longer text should cost more tokens: short=%d long=%d", short, long)
	}
}
