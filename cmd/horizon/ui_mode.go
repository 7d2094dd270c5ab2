package main

import (
	"fmt"
	"os"
	"strings"
)

// uiMode controls whether the live scheduler monitor runs.
type uiMode int

const (
	uiAuto uiMode = iota // TUI when stdout is a terminal
	uiOn
	uiOff
)

func parseUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiAuto, nil
	case "on":
		return uiOn, nil
	case "off":
		return uiOff, nil
	}
	return uiOff, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
}

// wantTUI resolves the mode against the actual output destination.
func (m uiMode) wantTUI() bool {
	switch m {
	case uiOn:
		return true
	case uiOff:
		return false
	}
	return isTerminal(os.Stdout)
}
