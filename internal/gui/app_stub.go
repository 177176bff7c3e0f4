//go:build !raylib

package gui

import "errors"

var ErrUnavailable = errors.New("gui: built without raylib support (use -tags raylib)")

// Run reports that the window viewer was not compiled in.
func Run(open func() (Source, error), opts Options) error {
	return ErrUnavailable
}
