// Command worker runs offline tooling: rasterize sketches, parse model
// output and purge soft-deleted projects.
package main

import (
	"os"

	"github.com/aidanjnn/sketchy/cmd/worker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
