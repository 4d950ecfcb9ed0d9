package version

import "testing"

func TestCurrentDefaults(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "  "
	info := Current()
	if info.Version != "dev" {
		t.Fatalf("expected dev fallback, got %q", info.Version)
	}
	if info.Commit == "" || info.GoVersion == "" {
		t.Fatalf("expected commit and go version, got %+v", info)
	}
}
