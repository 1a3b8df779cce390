package utils

import (
	"os"
	"os/signal"
	"syscall"
)

// exitProcess is swapped in tests.
var exitProcess = os.Exit

// HandleTerminationProcess runs cleanup on SIGINT/SIGTERM and exits with a
// zero code: operator-initiated shutdown is the normal way the daemon stops.
func HandleTerminationProcess(cleanup func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go awaitTermination(c, cleanup)
}

func awaitTermination(c chan os.Signal, cleanup func()) {
	<-c
	cleanup()
	exitProcess(0)
}
