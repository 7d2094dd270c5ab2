package main

import "testing"

func TestParseUIMode(t *testing.T) {
	cases := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiAuto, false},
		{"auto", uiAuto, false},
		{"AUTO", uiAuto, false},
		{" on ", uiOn, false},
		{"off", uiOff, false},
		{"tui", uiOff, true},
	}

	for _, tc := range cases {
		got, err := parseUIMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseUIMode(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUIMode(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseUIMode(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestUIMode_ExplicitModesIgnoreTerminal(t *testing.T) {
	if !uiOn.wantTUI() {
		t.Errorf("mode on must force the monitor")
	}
	if uiOff.wantTUI() {
		t.Errorf("mode off must suppress the monitor")
	}
}
