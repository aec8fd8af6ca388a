package browser

import (
	"context"
	"testing"
)

func TestManager_ClosedRefusesStart(t *testing.T) {
	m := NewManager(Config{})
	if m.Browser() != nil {
		t.Fatal("browser before Start")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.Start(context.Background()); err == nil {
		t.Fatal("Start after Close: expected error")
	}
}

func TestOpenTab_NoBrowser(t *testing.T) {
	m := NewManager(Config{})
	if _, err := OpenTab(context.Background(), m, "about:blank"); err == nil {
		t.Fatal("OpenTab without browser: expected error")
	}
}
