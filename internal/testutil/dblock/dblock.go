// Package dblock serialises Postgres integration tests across test binaries.
// go test runs packages in parallel and they all truncate the same ledger
// tables, so each test holds a loopback listener for its whole run.
package dblock

import (
	"net"
	"os"
	"time"
)

const (
	defaultAddr = "127.0.0.1:45433"
	addrEnv     = "LEDGER_TEST_DB_LOCK_ADDR"
	retryEvery  = 50 * time.Millisecond
)

// Acquire blocks until the lock is free and returns its release func.
func Acquire() func() {
	addr := os.Getenv(addrEnv)
	if addr == "" {
		addr = defaultAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(retryEvery)
	}
}
