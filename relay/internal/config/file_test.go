package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/overlayrelay/relay/message"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Page.URL != DefaultURL || cfg.Page.RootSelector != "#root-container" {
		t.Errorf("page: got %+v", cfg.Page)
	}
	if cfg.Ready.PollInterval != 500*time.Millisecond || cfg.Ready.Debounce != time.Second {
		t.Errorf("ready: got %+v", cfg.Ready)
	}
	if cfg.Endpoint.URL != DefaultEndpoint || cfg.Endpoint.Transport != "websocket" {
		t.Errorf("endpoint: got %+v", cfg.Endpoint)
	}
	if len(cfg.Bindings) != 3 {
		t.Fatalf("bindings: got %d, want 3", len(cfg.Bindings))
	}
	p, err := cfg.BindingPayload(1)
	if err != nil {
		t.Fatal(err)
	}
	if p != message.Legacy("2") {
		t.Errorf("payload 1: got %#v", p)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlayrelay.yaml")
	yml := `
page:
  ticker_selector: '[data-cy="Container-ticker"]'
ready:
  debounce: 2s
endpoint:
  transport: http
bindings:
  - label: Arizona
    value: AZ
  - label: State 1
    value: "1"
    format: legacy
status:
  addr: 127.0.0.1:8089
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Ready.Debounce != 2*time.Second || cfg.Ready.PollInterval != 500*time.Millisecond {
		t.Errorf("ready: got %+v", cfg.Ready)
	}
	if cfg.Bindings[0].Format != "state" || cfg.Bindings[1].Format != "legacy" {
		t.Errorf("formats: got %q %q", cfg.Bindings[0].Format, cfg.Bindings[1].Format)
	}
	p, _ := cfg.BindingPayload(0)
	if p != message.SetCurrentState("AZ") {
		t.Errorf("payload 0: got %#v", p)
	}
	if cfg.Status.Addr != "127.0.0.1:8089" {
		t.Errorf("status: got %q", cfg.Status.Addr)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte(`
endpoint:
  transport: smoke-signals
bindings:
  - label: Arizona
    value: Arizona
  - label: Arizona
    value: AZ
`))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"endpoint.transport", "bindings[0]", "duplicate label"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q: %v", want, err)
		}
	}
}

func TestValidate_NoBindings(t *testing.T) {
	if _, err := Parse([]byte("page:\n  url: http://localhost/\n")); err == nil {
		t.Fatal("expected error for empty bindings")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
