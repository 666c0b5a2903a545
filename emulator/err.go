package emulator

import (
	"errors"

	"github.com/ezrec/armemu/translate"
)

var f = translate.From

var (
	ErrArguments = errors.New(f("at most four arguments"))
)

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	LineNo int
	Addr   uint32
	Err    error
}

func (err *ErrRuntime) Error() string {
	return f("line %d (0x%08x) %v", err.LineNo, err.Addr, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
