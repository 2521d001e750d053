package opset

import "errors"

var (
	// ErrNotAnObject is returned when an op's ObjId does not name a
	// currently-known container.
	ErrNotAnObject = errors.New("opset: target is not a known object")
)
