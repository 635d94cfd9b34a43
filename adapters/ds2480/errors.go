package ds2480

import (
	"github.com/onewirenet/ds2480"
)

// ds2480Err builds an *onewire.Error scoped to this package's operations.
func ds2480Err(op string, kind onewire.Kind, cause error) *onewire.Error {
	return onewire.NewError("ds2480."+op, kind, cause)
}
