package iml

import (
	"fmt"

	"tlog.app/go/loc"
)

// InternalError is the panic value of a broken compiler invariant.
// It is never a property of the guest program.
type InternalError struct {
	Msg string
	At  loc.PC
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal: %s (at %v)", e.Msg, e.At)
}

// Assert panics with an *InternalError if cond is false.
func Assert(cond bool, format string, args ...any) {
	if cond {
		return
	}

	panic(&InternalError{
		Msg: fmt.Sprintf(format, args...),
		At:  loc.Caller(1),
	})
}

// Unreachable reports an operand shape or operation a pass has no handler for.
func Unreachable(x any) {
	panic(&InternalError{
		Msg: fmt.Sprintf("unhandled %T: %+v", x, x),
		At:  loc.Caller(1),
	})
}
