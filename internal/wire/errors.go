package wire

import (
	"errors"
	"fmt"
)

// ErrFraming is the sentinel wrapped by every decode error in this
// package: a short buffer, an unrecognised record tag, or a field outside
// its valid range. Per the protocol's error policy this is always
// non-fatal — the caller drops the rest of the current frame and
// continues with the next one.
var ErrFraming = errors.New("wire: framing error")

func errShort(what string, want, got int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrFraming, what, want, got)
}

func errTag(got byte) error {
	return fmt.Errorf("%w: unrecognised record tag %q", ErrFraming, got)
}
