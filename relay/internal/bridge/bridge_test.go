package bridge

import (
	"strings"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"type":"mutation","total":5,"ticker":3}`)
	if err != nil {
		t.Fatalf("mutation: %v", err)
	}
	if ev.Type != eventMutation || ev.Total != 5 || ev.Ticker != 3 {
		t.Errorf("mutation: got %+v", ev)
	}

	ev, err = decodeEvent(`{"type":"click","token":"2"}`)
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	if ev.Type != eventClick || ev.Token != "2" {
		t.Errorf("click: got %+v", ev)
	}
}

func TestDecodeEvent_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"type":`,
		"unknown type":   `{"type":"scroll"}`,
		"ticker > total": `{"type":"mutation","total":1,"ticker":2}`,
		"negative":       `{"type":"mutation","total":-1}`,
		"click no token": `{"type":"click"}`,
	}
	for name, payload := range cases {
		if _, err := decodeEvent(payload); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestScript(t *testing.T) {
	if !strings.HasPrefix(bridgeJS, "() =>") {
		t.Error("bridge.js must be a bare arrow function so Eval invokes it")
	}
	for _, m := range []string{"rootPresent", "observe", "disconnect", "bind", bindingName} {
		if !strings.Contains(bridgeJS, m) {
			t.Errorf("bridge.js lacks %s", m)
		}
	}
}
