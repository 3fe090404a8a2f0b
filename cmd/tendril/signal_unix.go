//go:build !windows

package main

import (
	"os"
	"syscall"
)

// stopSignals end serve, mcp and long runs. SIGTERM covers service managers.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
