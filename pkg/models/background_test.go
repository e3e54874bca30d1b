package models

import "testing"

func TestBackgroundAgent_CanStartRun(t *testing.T) {
	active := BackgroundAgent{Status: BackgroundStatusActive}
	if !active.CanStartRun() {
		t.Error("expected active agent to be able to start a run")
	}

	running := BackgroundAgent{Status: BackgroundStatusRunning}
	if running.CanStartRun() {
		t.Error("expected running agent to refuse a second concurrent run")
	}
}

func TestEventLogTail(t *testing.T) {
	log := []EventLogEntry{
		{Sequence: 1, Message: "a"},
		{Sequence: 2, Message: "b"},
		{Sequence: 3, Message: "c"},
	}
	tail := EventLogTail(log, 2)
	if len(tail) != 2 || tail[0].Sequence != 2 || tail[1].Sequence != 3 {
		t.Errorf("EventLogTail(log, 2) = %+v, want last 2 entries", tail)
	}

	full := EventLogTail(log, 10)
	if len(full) != 3 {
		t.Errorf("EventLogTail(log, 10) len = %d, want 3", len(full))
	}
}

func TestAppendCapped(t *testing.T) {
	var log []EventLogEntry
	for i := 1; i <= 5; i++ {
		log = AppendCapped(log, EventLogEntry{Sequence: uint64(i)}, 3)
	}
	if len(log) != 3 {
		t.Fatalf("len(log) = %d, want 3", len(log))
	}
	if log[0].Sequence != 3 || log[2].Sequence != 5 {
		t.Errorf("unexpected capped log contents: %+v", log)
	}
}
