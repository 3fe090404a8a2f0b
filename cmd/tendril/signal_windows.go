//go:build windows

package main

import "os"

// stopSignals end serve, mcp and long runs. Windows only delivers Ctrl+C.
var stopSignals = []os.Signal{os.Interrupt}
