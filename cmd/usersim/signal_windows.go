//go:build windows

package main

import "os"

// shutdownSignals end long-running commands. SIGTERM does not exist on Windows.
var shutdownSignals = []os.Signal{os.Interrupt}
