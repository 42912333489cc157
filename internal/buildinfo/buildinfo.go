// Package buildinfo holds the values injected at link time, e.g.
//
//	go build -ldflags "-X github.com/dmitrijs2005/matakeeper/internal/buildinfo.Version=1.2.0"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	Version = "N/A"
	Date    = "N/A"
	Commit  = "N/A"
)

func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", Version)
	fmt.Fprintf(w, "Build date: %s\n", Date)
	fmt.Fprintf(w, "Build commit: %s\n", Commit)
}

// VersionOr returns the linked version, or fallback for dev builds.
func VersionOr(fallback string) string {
	if Version == "" || Version == "N/A" {
		return fallback
	}
	return Version
}
