package version

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testDist points the default distribution at a local release server.
func testDist(t *testing.T, handler http.Handler) Distribution {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	d := Default()
	d.BaseURL = ts.URL
	d.Client = ts.Client()
	return d
}

func serveRelease(t *testing.T, w http.ResponseWriter, r Release) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(r); err != nil {
		t.Errorf("encode release: %v", err)
	}
}

func TestCheckStableChannel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/vm799/trust-by-design-sub003/releases/latest",
		func(w http.ResponseWriter, _ *http.Request) {
			serveRelease(t, w, Release{TagName: "v1.4.0", HTMLURL: "https://example.com/v1.4.0"})
		})
	d := testDist(t, mux)

	got := d.Check("v1.2.3")
	if got.Error != nil {
		t.Fatalf("check: %v", got.Error)
	}
	if !got.HasUpdate || got.LatestVersion != "v1.4.0" || got.UpdateURL == "" {
		t.Errorf("update not reported: %+v", got)
	}

	got = d.Check("v1.4.0")
	if got.HasUpdate {
		t.Errorf("up-to-date binary reported an update: %+v", got)
	}
}

func TestCheckEdgeChannelSeesPrereleases(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/vm799/trust-by-design-sub003/releases",
		func(w http.ResponseWriter, _ *http.Request) {
			releases := []Release{{TagName: "v1.5.0-rc.1", Prerelease: true}}
			if err := json.NewEncoder(w).Encode(releases); err != nil {
				t.Errorf("encode releases: %v", err)
			}
		})
	d := testDist(t, mux)
	d.Channel = ChannelEdge

	got := d.Check("v1.4.0")
	if got.Error != nil {
		t.Fatalf("check: %v", got.Error)
	}
	if !got.HasUpdate || got.LatestVersion != "v1.5.0-rc.1" {
		t.Errorf("prerelease not offered on edge channel: %+v", got)
	}
}

func TestCheckDevelopmentBuildSkipsNetwork(t *testing.T) {
	called := false
	d := testDist(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	got := d.Check("devel+abc123def")
	if called {
		t.Error("development build hit the release server")
	}
	if got.HasUpdate || got.Error != nil {
		t.Errorf("development check: %+v", got)
	}
}

func TestCheckServerError(t *testing.T) {
	d := testDist(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))

	got := d.Check("v1.0.0")
	if got.Error == nil {
		t.Fatal("expected error from failing release server")
	}
	if got.HasUpdate {
		t.Error("failed check must not report an update")
	}
}

func TestIsDevelopmentVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"", true},
		{"unknown", true},
		{"dev", true},
		{"devel", true},
		{"devel+abc123", true},
		{"devel+git.sha.abc123def", true},

		{"v0.1.0", false},
		{"0.1.0", false},
		{"1.0.0-beta", false},
		{"v2.5.3", false},

		// Partial matches must not trigger dev
		{"develop", false},
		{"development", false},
		{"my-devel", false},

		// Case-sensitive
		{"DEV", false},
		{"Dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := IsDevelopmentVersion(tt.input)
			if got != tt.expected {
				t.Errorf("IsDevelopmentVersion(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestUpdateCommand(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"v1.2.3", true},
		{"1.2.3", true},
		{"v0.3.0-beta", true},
		{"v1.0.0-rc.1", true},
		{"1.5.0-beta.2", true},

		{"", false},
		{"invalid", false},
		{"not-a-version", false},

		// Shell injection attempts
		{`"; rm -rf /`, false},
		{"v1.2.3; echo pwned", false},
		{"v1.2.3$(whoami)", false},
		{"v1.2.3`whoami`", false},
		{"v1.2.3 && cat /etc/passwd", false},

		// Path traversal
		{"../../../etc/passwd", false},

		// Malformed prerelease identifiers
		{"v1.2.3--", false},
		{"v1.2.3-", false},
		{"v1.2.3-beta.", false},
		{"v1.2.3-beta..rc", false},
		{"v1.2.3-_invalid", false},

		{"v1.2", false},
		{"v1.2.3.4", false},
		{"vA.B.C", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got := UpdateCommand(tt.version)
			if tt.valid {
				if got == "" {
					t.Fatalf("UpdateCommand(%q) returned empty for valid version", tt.version)
				}
				if !strings.Contains(got, "go install") ||
					!strings.Contains(got, Default().Module()) ||
					!strings.Contains(got, "-X main.Version="+tt.version) ||
					!strings.Contains(got, "@"+tt.version) {
					t.Errorf("UpdateCommand(%q) malformed: %q", tt.version, got)
				}
			} else if got != "" {
				t.Errorf("UpdateCommand(%q) = %q, want empty", tt.version, got)
			}
		})
	}
}
