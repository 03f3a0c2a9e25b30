package main

import "strings"

// Set at link time, e.g. -ldflags "-X main.buildVersion=v0.3.0 -X main.buildCommit=$(git rev-parse HEAD)".
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

func versionString() string {
	return formatVersion(buildVersion, buildCommit)
}

// formatVersion returns release versions untouched and suffixes development
// builds with the short commit hash when one is known.
func formatVersion(version, commit string) string {
	v := strings.TrimSpace(version)
	if v != "" && v != "dev" {
		return v
	}
	c := strings.TrimSpace(commit)
	if c == "" || c == "unknown" {
		return "dev"
	}
	return "dev-" + c[:min(len(c), 7)]
}
