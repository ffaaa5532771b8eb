//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals end long-running commands. Unix adds SIGTERM to Ctrl+C.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
