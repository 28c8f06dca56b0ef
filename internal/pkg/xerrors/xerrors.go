package xerrors

import "errors"

// As is a generic wrapper around errors.As.
func As[T error](err error) (T, bool) {
	var target T

	ok := errors.As(err, &target)

	return target, ok
}
