package reader

import "errors"

// ErrUnknownSize is returned by Seek(io.SeekEnd) when the resource's
// total size cannot be determined within the configured timeout.
var ErrUnknownSize = errors.New("reader: size unknown")

// ErrClosed is returned by Read/Seek after Close.
var ErrClosed = errors.New("reader: closed")
