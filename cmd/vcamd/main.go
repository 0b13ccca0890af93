package main

import (
	"fmt"
	"os"

	"github.com/vcamd/vcamd/cmd/vcamd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
