package main

import (
	"os"

	"github.com/vnykmshr/sinkflow/cmd/sinkpipe/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		os.Exit(1)
	}
}
