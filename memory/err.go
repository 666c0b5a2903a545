package memory

import (
	"errors"

	"github.com/ezrec/armemu/translate"
)

var f = translate.From

var (
	// Memory errors
	ErrUnmapped = errors.New(f("address unmapped"))
	ErrReadOnly = errors.New(f("read only"))
)

// ErrAddress reports the address of a failed access.
type ErrAddress struct {
	Addr uint32
	Err  error
}

func (err *ErrAddress) Error() string {
	return f("address 0x%08x %v", err.Addr, err.Err)
}

func (err *ErrAddress) Unwrap() error {
	return err.Err
}
