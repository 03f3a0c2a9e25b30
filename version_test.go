package main

import "testing"

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "release", version: "v0.3.0", commit: "0123456789abcdef", want: "v0.3.0"},
		{name: "dev with commit", version: "dev", commit: "0123456789abcdef", want: "dev-0123456"},
		{name: "dev with short commit", version: "dev", commit: "abc", want: "dev-abc"},
		{name: "dev unknown commit", version: "dev", commit: "unknown", want: "dev"},
		{name: "empty version", version: " ", commit: "fedcba9876", want: "dev-fedcba9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatVersion(tt.version, tt.commit); got != tt.want {
				t.Fatalf("formatVersion(%q, %q) = %q, want %q", tt.version, tt.commit, got, tt.want)
			}
		})
	}
}
