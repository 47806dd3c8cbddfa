package chain

import (
	"errors"
	"fmt"
)

// ReadError wraps an RPC read failure. Callers retry with backoff at the
// supervisor level; a ReadError never crashes the process directly.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("chain read %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// IsReadError reports whether err is (or wraps) a chain read failure.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
