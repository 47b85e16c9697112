// dmwatch - lifecycle monitor and command client for the Girder
// wt_data_manager plugin.
package main

import (
	"os"

	"github.com/whole-tale/girder-wt-data-manager/internal/cli"
	"github.com/whole-tale/girder-wt-data-manager/internal/version"
)

// Set by ldflags:
//
//	go build -ldflags "-X main.Version=v0.2.0 -X main.BuildTime=$(date -u +%F)" ./cmd/dmwatch
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	// cobra has already printed the error
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
