package main

import (
	"fmt"
	"os"

	logs "github.com/danmuck/hcilink/internal/logging"
)

func main() {
	logs.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hcictl: %v\n", err)
		os.Exit(1)
	}
}
