package automation

import (
	"reflect"
	"sync"
	"testing"
)

func TestRegistry_RegisterIndexesEventTriggers(t *testing.T) {
	r := NewRegistry()
	r.Register(testAutomation("a1", "u1", "task.created"))
	r.Register(testAutomation("a2", "u1", "task.created"))
	r.Register(testAutomation("a3", "u1", "task.closed"))

	if got := r.ListenerIDs("task.created"); !reflect.DeepEqual(got, []string{"a1", "a2"}) {
		t.Errorf("task.created listeners = %v, want [a1 a2]", got)
	}
	if got := r.ListenerIDs("task.closed"); !reflect.DeepEqual(got, []string{"a3"}) {
		t.Errorf("task.closed listeners = %v, want [a3]", got)
	}
	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
}

func TestRegistry_EventTriggerWithoutNameIsNotIndexed(t *testing.T) {
	r := NewRegistry()
	r.Register(testAutomation("a1", "u1", ""))

	if _, ok := r.Get("a1"); !ok {
		t.Fatal("automation should still be in the catalog")
	}
	if got := r.ListenerIDs(""); len(got) != 0 {
		t.Errorf("empty event name indexed: %v", got)
	}
}

func TestRegistry_NonEventTriggersAreNotIndexed(t *testing.T) {
	r := NewRegistry()
	a := scheduleAutomation("s1", "0 20 * * *")
	a.Trigger.EventName = "stray"
	r.Register(a)

	if got := r.ListenerIDs("stray"); len(got) != 0 {
		t.Errorf("schedule automation indexed as listener: %v", got)
	}
}

func TestRegistry_UnregisterRemovesListener(t *testing.T) {
	r := NewRegistry()
	r.Register(testAutomation("a1", "u1", "task.created"))
	r.Register(testAutomation("a2", "u1", "task.created"))

	if !r.Unregister("a1") {
		t.Fatal("Unregister(a1) = false, want true")
	}
	if got := r.ListenerIDs("task.created"); !reflect.DeepEqual(got, []string{"a2"}) {
		t.Errorf("listeners after unregister = %v, want [a2]", got)
	}
	if _, ok := r.Get("a1"); ok {
		t.Error("a1 still in catalog")
	}

	r.Unregister("a2")
	if got := r.ListenerIDs("task.created"); len(got) != 0 {
		t.Errorf("bucket should be empty, got %v", got)
	}
	if r.Unregister("a2") {
		t.Error("second Unregister should report false")
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(testAutomation("a1", "u1", "task.created"))
	r.Register(testAutomation("a1", "u1", "task.created"))

	if got := r.ListenerIDs("task.created"); !reflect.DeepEqual(got, []string{"a1"}) {
		t.Errorf("duplicate listener entries: %v", got)
	}

	moved := testAutomation("a1", "u1", "task.closed")
	r.Register(moved)
	if got := r.ListenerIDs("task.created"); len(got) != 0 {
		t.Errorf("old bucket not cleared: %v", got)
	}
	if got := r.ListenerIDs("task.closed"); !reflect.DeepEqual(got, []string{"a1"}) {
		t.Errorf("new bucket = %v, want [a1]", got)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := NewRegistry()
	a := testAutomation("a1", "u1", "task.created")
	r.Register(a)

	a.Name = "mutated after register"
	got, _ := r.Get("a1")
	if got.Name == "mutated after register" {
		t.Error("registry shares memory with caller")
	}

	got.Actions[0].Config["message"] = "changed"
	again, _ := r.Get("a1")
	if again.Actions[0].Config["message"] == "changed" {
		t.Error("Get returned a shallow copy")
	}
}

func TestRegistry_ScheduledOnlyActive(t *testing.T) {
	r := NewRegistry()
	r.Register(scheduleAutomation("s1", "0 20 * * *"))
	paused := scheduleAutomation("s2", "0 20 * * *")
	paused.Status = StatusPaused
	r.Register(paused)
	r.Register(testAutomation("e1", "u1", "x"))

	got := r.Scheduled()
	if len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("Scheduled() = %v, want only s1", got)
	}
}

func TestRegistry_ListFiltersByOwner(t *testing.T) {
	r := NewRegistry()
	r.Register(testAutomation("a1", "u1", "x"))
	r.Register(testAutomation("a2", "u2", "x"))

	if got := r.List("u2"); len(got) != 1 || got[0].ID != "a2" {
		t.Errorf("List(u2) = %v", got)
	}
	if got := r.List(""); len(got) != 2 {
		t.Errorf("List(\"\") returned %d, want 2", len(got))
	}
}

func TestRegistry_RecordRun(t *testing.T) {
	r := NewRegistry()
	r.Register(testAutomation("a1", "u1", "x"))

	errMsg := "pipeline panic: boom"
	run := &Run{ID: "r1", AutomationID: "a1", Success: false, Error: &errMsg}
	updated := r.recordRun("a1", run)

	if updated.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", updated.RunCount)
	}
	if updated.LastRunAt == nil {
		t.Error("LastRunAt not set")
	}
	if updated.LastError == nil || *updated.LastError != errMsg {
		t.Errorf("LastError = %v, want %q", updated.LastError, errMsg)
	}
	if r.recordRun("unknown", run) != nil {
		t.Error("recordRun on unknown id should return nil")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			r.Register(testAutomation(id, "u1", "evt"))
			r.Unregister(id)
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Listeners("evt")
			_ = r.Scheduled()
		}()
	}
	wg.Wait()
}
