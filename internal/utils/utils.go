// Package utils holds small logging and retry helpers shared across the CLI
// and backends.
package utils

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/apex/log/handlers/cli"
)

var normalPadding = cli.Default.Padding

type stop struct {
	error
}

// Retry runs f up to attempts times with jittered exponential backoff.
func Retry(attempts int, sleep time.Duration, f func() error) error {
	if err := f(); err != nil {
		if s, ok := err.(stop); ok {
			// Return the original error for later checking
			return s.error
		}

		if attempts--; attempts > 0 {
			jitter := time.Duration(rand.Int63n(int64(sleep)))
			sleep = sleep + jitter/2

			time.Sleep(sleep)
			return Retry(attempts, 2*sleep, f)
		}
		return fmt.Errorf("after %d attempts, %v", attempts, err)
	}

	return nil
}

// Indent indents apex log line to supplied level
func Indent(f func(s string), level int) func(string) {
	return func(s string) {
		cli.Default.Padding = normalPadding * level
		f(s)
		cli.Default.Padding = normalPadding
	}
}
