package bloom

import "errors"

// ErrTruncated is returned when an encoded filter is shorter than its
// declared bit length.
var ErrTruncated = errors.New("bloom: truncated filter")
