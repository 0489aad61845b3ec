//go:build !govips || !cgo

package engine

// Startup is a no-op in the pure-Go build.
func Startup() error {
	return nil
}

// Shutdown is a no-op in the pure-Go build.
func Shutdown() {}

// New returns the engine for this build.
func New() Engine {
	return stdEngine{}
}
