package version

import (
	"strings"
	"testing"
)

func TestVersion_DefaultIsDevBuild(t *testing.T) {
	if Version == "" {
		t.Fatal("Version must have a compiled-in default")
	}
	// The default carries the -dev suffix until release ldflags replace it.
	// The colored segments may wrap the digits in escape codes, the suffix
	// is appended as plain text either way.
	if !strings.HasSuffix(Version, "-dev") {
		t.Errorf("default Version %q should end in -dev", Version)
	}
	for _, digit := range []string{"0", "1"} {
		if !strings.Contains(Version, digit) {
			t.Errorf("default Version %q missing segment %q", Version, digit)
		}
	}
}

func TestVersion_BuildMetadataDefaultsEmpty(t *testing.T) {
	// GitCommit, GitMessage and BuildDate are filled by -ldflags on release
	// builds only; a plain `go build` leaves them empty.
	if GitCommit != "" || GitMessage != "" || BuildDate != "" {
		t.Errorf("unexpected compiled-in metadata: commit=%q message=%q date=%q",
			GitCommit, GitMessage, BuildDate)
	}
}

func TestVersion_LdflagsOverride(t *testing.T) {
	saved := [4]string{Version, GitCommit, GitMessage, BuildDate}
	defer func() {
		Version, GitCommit, GitMessage, BuildDate = saved[0], saved[1], saved[2], saved[3]
	}()

	Version = "1.4.0"
	GitCommit = "f00dcafe"
	GitMessage = "sched: fix ready queue tie-break"
	BuildDate = "2026-08-30T00:00:00Z"

	if Version != "1.4.0" || GitCommit != "f00dcafe" {
		t.Errorf("override lost: version=%q commit=%q", Version, GitCommit)
	}
	if GitMessage != "sched: fix ready queue tie-break" || BuildDate != "2026-08-30T00:00:00Z" {
		t.Errorf("override lost: message=%q date=%q", GitMessage, BuildDate)
	}
}
