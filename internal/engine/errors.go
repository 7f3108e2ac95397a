package engine

import "errors"

// ErrHandleBusy is returned by Handle.TryGetReader when a Reader for
// this stream is already live.
var ErrHandleBusy = errors.New("engine: reader already in use")

// ErrNoBackendSelected is returned by StreamBuilder.Build when none of
// ToLimitedMem/ToUnlimitedMem/ToDisk was called first.
var ErrNoBackendSelected = errors.New("engine: stream builder has no backend selected")
