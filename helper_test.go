package main

import (
	"io"
	"time"
)

const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)

func init() {
	baseLogger.SetOutput(io.Discard)
}
