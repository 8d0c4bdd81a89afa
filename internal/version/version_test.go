package version

import "testing"

func TestUserAgent(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "1.2.3"
	if got := UserAgent(); got != "portfolio-stream/1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
	if got := String(); got != "1.2.3 (unknown) built unknown" {
		t.Errorf("String() = %q", got)
	}
}
