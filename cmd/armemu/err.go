package main

import (
	"github.com/ezrec/armemu/translate"
)

var f = translate.From

// ErrImageSize is the length of a binary image that is not whole words.
type ErrImageSize int

func (err ErrImageSize) Error() string {
	return f("image size %v is not a multiple of 4", int(err))
}
