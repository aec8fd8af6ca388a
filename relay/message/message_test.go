package message

import "testing"

func TestMarshal_StateEnvelope(t *testing.T) {
	data, err := Marshal(SetCurrentState("AZ"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"data":{"action":"set current state","statePostal":"AZ","sendData":"flowics"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestMarshal_LegacyEnvelope(t *testing.T) {
	data, err := Marshal(Legacy("2"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"data":{"postalCode":"2","sendData":"flowics"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestBuild(t *testing.T) {
	p, err := Build(FormatState, "CA")
	if err != nil {
		t.Fatal(err)
	}
	if sp, ok := p.(StatePayload); !ok || sp.StatePostal != "CA" {
		t.Errorf("state: got %#v", p)
	}

	p, err = Build(FormatLegacy, "3")
	if err != nil {
		t.Fatal(err)
	}
	if lp, ok := p.(LegacyPayload); !ok || lp.PostalCode != "3" {
		t.Errorf("legacy: got %#v", p)
	}

	for _, bad := range []struct {
		f Format
		v string
	}{
		{FormatState, "az"},
		{FormatState, "ARI"},
		{FormatLegacy, ""},
		{"xml", "AZ"},
	} {
		if _, err := Build(bad.f, bad.v); err == nil {
			t.Errorf("Build(%q, %q): expected error", bad.f, bad.v)
		}
	}
}
