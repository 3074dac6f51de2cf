package media

import "errors"

var (
	// ErrNotFound is returned when a source file does not exist
	ErrNotFound = errors.New("media file not found")

	// ErrUnsupported is returned for an operation selector outside the recognized set
	ErrUnsupported = errors.New("unsupported operation")

	// ErrBusy is returned when an operation is requested while another is in flight
	ErrBusy = errors.New("conversion already running")

	// ErrProbe is returned when metadata extraction fails to start or produces no usable report
	ErrProbe = errors.New("probe failed")

	// ErrConversionFailed is returned when the engine process ran but exited indicating failure
	ErrConversionFailed = errors.New("conversion failed")

	// ErrProcessSpawn is returned when the external process could not be started at all
	ErrProcessSpawn = errors.New("failed to start process")
)
