package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldC, oldB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldV, oldC, oldB })

	Version = "1.2.3"
	Commit = "0123456789abcdef"
	BuildTime = "2026-01-01T00:00:00Z"

	if got, want := String(), "1.2.3 (0123456) built 2026-01-01T00:00:00Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	Commit = "abc"
	if got := ShortCommit(); got != "abc" {
		t.Errorf("ShortCommit() = %q, want abc", got)
	}
}
