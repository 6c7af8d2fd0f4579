package events

import "testing"

func TestNoopSinkDiscards(t *testing.T) {
	var s Sink = NoopSink{}
	s.Publish(Event{Name: UpdateStart})
}

func TestFuncSinkInvokesFunction(t *testing.T) {
	var got Event
	s := FuncSink(func(e Event) { got = e })
	s.Publish(Event{Name: FileUpdateDone, Data: map[string]interface{}{"path": "a.bin"}})

	if got.Name != FileUpdateDone {
		t.Errorf("got.Name = %q, want %q", got.Name, FileUpdateDone)
	}
	if got.Data["path"] != "a.bin" {
		t.Errorf("got.Data[path] = %v, want a.bin", got.Data["path"])
	}
}

func TestFuncSinkNilIsSafe(t *testing.T) {
	var s FuncSink
	s.Publish(Event{Name: Warning})
}
