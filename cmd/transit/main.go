package main

import (
	"github.com/meridian-labs/transit/internal/cli"
)

// Version is stamped via LDFLAGS at release time.
var Version = "dev"

func main() {
	if Version != "dev" {
		cli.Version = Version
	}
	cli.Execute()
}
