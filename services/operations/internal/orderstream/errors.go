package orderstream

import "fmt"

// TransientChannelError reports that every connect attempt of a round failed.
// It is logged and the client keeps serving the last reconciled view.
type TransientChannelError struct {
	Attempts int
	Err      error
}

func (e *TransientChannelError) Error() string {
	return fmt.Sprintf("order stream unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientChannelError) Unwrap() error {
	return e.Err
}
