package logging

import "testing"

func TestDebugGatedByFlag(t *testing.T) {
	Init(true)
	DebugEnabled = false
	Debug("should not panic even though output is suppressed")

	DebugEnabled = true
	Debug("debug message %d", 42)
	DebugEnabled = false
}

func TestLReturnsNonNilLogger(t *testing.T) {
	Init(false)
	if L() == nil {
		t.Fatal("L() returned nil logger")
	}
}
