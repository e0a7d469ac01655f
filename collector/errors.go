package collector

import (
	"errors"
	"fmt"
)

// ErrTimeout indicates no sample arrived within the collection timeout.
var ErrTimeout = errors.New("timed out waiting for sample")

// ErrNoHeader indicates a block without a parsable column header.
var ErrNoHeader = errors.New("no column header in block")

// ErrNoRows indicates a block with a header but no process rows.
var ErrNoRows = errors.New("no process rows in block")

// CollectionError classifies a failed collection attempt. The orchestrator
// decides whether to skip the tick; the supervisor handles subprocess
// restarts independently.
type CollectionError struct {
	Op  string
	Err error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Op, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }
