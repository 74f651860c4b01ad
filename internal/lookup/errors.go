package lookup

import "fmt"

// NetworkError covers transport failures, non-200 responses and envelopes
// that cannot be decoded.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lookup %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("lookup %s: HTTP %d", e.Op, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ApplicationError is a well-formed envelope whose ret is not 0.
type ApplicationError struct {
	Op  string
	Ret int
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("lookup %s: ret=%d", e.Op, e.Ret)
}
