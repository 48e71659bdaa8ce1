// Package version keeps the tbd binary aware of newer releases. Lookups go
// through a Distribution, which names the GitHub repo the binary ships
// from, the release channel it follows, and how to reinstall it. The
// package-level helpers operate on the default tbd distribution; checks are
// cached on disk so the CLI never hits GitHub more than once per interval.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Channel selects which releases count as updates.
type Channel string

const (
	// ChannelStable follows tagged releases only.
	ChannelStable Channel = "stable"
	// ChannelEdge also counts prereleases (v1.2.3-rc.1) as updates.
	ChannelEdge Channel = "edge"
)

const githubAPI = "https://api.github.com"

// Distribution describes where a binary comes from and how it updates.
type Distribution struct {
	Owner   string
	Repo    string
	Binary  string
	Channel Channel

	// BaseURL overrides the GitHub API root. Tests point it at a local
	// server; empty means the real API.
	BaseURL string
	// Client overrides the HTTP client; nil gets a 5s-timeout default.
	Client *http.Client
}

// Default is the distribution this binary ships from.
func Default() Distribution {
	return Distribution{
		Owner:   "vm799",
		Repo:    "trust-by-design-sub003",
		Binary:  "tbd",
		Channel: ChannelStable,
	}
}

// Module returns the go module path used for reinstalling.
func (d Distribution) Module() string {
	return "github.com/" + d.Owner + "/" + d.Repo
}

func (d Distribution) httpClient() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 5 * time.Second}
}

func (d Distribution) apiBase() string {
	if d.BaseURL != "" {
		return strings.TrimSuffix(d.BaseURL, "/")
	}
	return githubAPI
}

// Release is the subset of a GitHub release the checker reads.
type Release struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// CheckResult holds the result of a version check.
type CheckResult struct {
	CurrentVersion string
	LatestVersion  string
	UpdateURL      string
	HasUpdate      bool
	Error          error
}

// Check fetches the newest release on the distribution's channel and
// compares it against currentVersion. Development builds never report an
// update: there is no tag to compare against.
func (d Distribution) Check(currentVersion string) CheckResult {
	result := CheckResult{CurrentVersion: currentVersion}
	if IsDevelopmentVersion(currentVersion) {
		return result
	}

	release, err := d.latest()
	if err != nil {
		result.Error = err
		return result
	}
	if release == nil {
		return result
	}

	result.LatestVersion = release.TagName
	result.UpdateURL = release.HTMLURL
	result.HasUpdate = isNewer(release.TagName, currentVersion)
	return result
}

// latest resolves the channel's newest release. Stable uses the
// releases/latest endpoint, which GitHub already filters to full releases;
// edge lists releases and takes the newest entry, prerelease or not.
func (d Distribution) latest() (*Release, error) {
	base := fmt.Sprintf("%s/repos/%s/%s/releases", d.apiBase(), d.Owner, d.Repo)

	if d.Channel != ChannelEdge {
		var release Release
		if err := d.getJSON(base+"/latest", &release); err != nil {
			return nil, err
		}
		return &release, nil
	}

	var releases []Release
	if err := d.getJSON(base+"?per_page=1", &releases); err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, nil
	}
	return &releases[0], nil
}

func (d Distribution) getJSON(url string, out any) error {
	resp, err := d.httpClient().Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UpdateCommand generates the go install command for updating to version.
// Returns empty string if version is invalid (prevents shell injection).
func (d Distribution) UpdateCommand(version string) string {
	if !validVersionRegex.MatchString(version) {
		return ""
	}
	return fmt.Sprintf(
		"go install -ldflags \"-X main.Version=%s\" %s@%s",
		version, d.Module(), version,
	)
}

// Check runs a live check against the default distribution.
func Check(currentVersion string) CheckResult {
	return Default().Check(currentVersion)
}

// UpdateCommand is Distribution.UpdateCommand on the default distribution.
func UpdateCommand(version string) string {
	return Default().UpdateCommand(version)
}

// IsDevelopmentVersion returns true for non-release versions.
func IsDevelopmentVersion(v string) bool {
	if v == "" || v == "unknown" || v == "dev" || v == "devel" {
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

// validVersionRegex matches valid semver versions (v1.2.3, v1.2.3-beta, etc.)
// Prerelease identifiers must be alphanumeric, separated by dots or hyphens.
// Rejects double hyphens (v1.2.3--), trailing hyphens (v1.2.3-), etc.
var validVersionRegex = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9]+([.-][a-zA-Z0-9]+)*)?$`)
