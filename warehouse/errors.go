package warehouse

import (
	"errors"
	"fmt"
)

// Sentinel errors for warehouse operations.
var (
	// ErrConnectionFailed matches every *ConnectionError.
	ErrConnectionFailed = errors.New("warehouse: connection failed")

	// ErrPoolExhausted indicates no connection became available within the
	// acquire timeout.
	ErrPoolExhausted = errors.New("warehouse: connection pool exhausted")

	// ErrPoolClosed indicates the pool was closed.
	ErrPoolClosed = errors.New("warehouse: connection pool closed")

	// ErrNotReady indicates the manager has not connected successfully.
	ErrNotReady = errors.New("warehouse: manager not ready")

	// ErrManagerClosed indicates the manager was closed.
	ErrManagerClosed = errors.New("warehouse: manager closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("warehouse: invalid config")

	// ErrUnknownDriver indicates a driver name with no Dialer.
	ErrUnknownDriver = errors.New("warehouse: unknown driver")
)

// ConnectionError reports that Connect gave up. It identifies the target so
// the failure can be diagnosed without the configuration at hand.
type ConnectionError struct {
	Host     string
	Database string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	target := e.Database
	if e.Host != "" {
		target = e.Host + "/" + e.Database
	}
	return fmt.Sprintf("warehouse: connection to %s failed after %d attempts: %v", target, e.Attempts, e.Err)
}

// Unwrap returns the last underlying failure.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnectionFailed.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}
