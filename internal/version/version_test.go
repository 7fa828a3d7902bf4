package version

import "testing"

func TestString(t *testing.T) {
	want := "dev (unknown) built unknown"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "salesfeed/dev" {
		t.Errorf("UserAgent() = %q, want salesfeed/dev", got)
	}
}
