package script

import (
	"strings"
	"testing"
	"time"
)

func TestDoorRunsAndReturnsOutput(t *testing.T) {
	src := "door greeter\nprint `done`\n"
	prog, err := Compile("t.scr", src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx := &Context{
		Doors: map[string]DoorDef{
			"greeter": {Command: "/bin/echo", Args: []string{"hello from door"}},
		},
	}
	e := NewEngine(".", ctx, nil)
	e.cache["t.scr"] = prog

	s, _ := newTestSession(t)
	if err := e.Start(s, "t.scr"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var out strings.Builder
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := e.Step(s); err != nil {
			t.Fatalf("step: %v", err)
		}
		out.WriteString(drainOutput(s))
		if strings.Contains(out.String(), "done") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !strings.Contains(out.String(), "hello from door") {
		t.Fatalf("output = %q, want it to contain the door's stdout", out.String())
	}
	if !strings.Contains(out.String(), "done") {
		t.Fatalf("output = %q, want the script to resume and print done", out.String())
	}
}

func TestDoorUnknownNameErrors(t *testing.T) {
	src := "door nosuch\n"
	prog, err := Compile("t.scr", src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e := NewEngine(".", &Context{}, nil)
	e.cache["t.scr"] = prog

	s, _ := newTestSession(t)
	if err := e.Start(s, "t.scr"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Step(s); err != nil {
		t.Fatalf("step: %v", err)
	}
	out := drainOutput(s)
	if !strings.Contains(out, "no such door") {
		t.Fatalf("output = %q, want a bracketed no-such-door error", out)
	}
}
