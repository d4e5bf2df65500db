package nav

import "errors"

var (
	// ErrNoPath means start and end could not be connected.
	ErrNoPath = errors.New("nav: no path")
	// ErrSnapshotUnavailable means the surface could not be read-locked (a writer holds it).
	ErrSnapshotUnavailable = errors.New("nav: snapshot unavailable")
	ErrOutOfBounds         = errors.New("nav: point outside navigable area")
)
