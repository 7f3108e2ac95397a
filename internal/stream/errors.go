package stream

import (
	"errors"
	"fmt"
)

// Error kind sentinels surfaced to the manager, grounded on the
// sentinel-plus-%w-wrapping style used elsewhere in this codebase
// (ErrEngine/ErrRepository + wrapEngine/wrapRepo) rather than a bespoke
// multi-level error hierarchy.
var (
	ErrHTTP       = errors.New("stream: http error")
	ErrWriting    = errors.New("stream: writing error")
	ErrAllocation = errors.New("stream: allocation error")
	ErrMigration  = errors.New("stream: migration error")
)

func wrapHTTP(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrHTTP, err)
}

func wrapWriting(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrWriting, err)
}
