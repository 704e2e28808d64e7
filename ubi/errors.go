package ubi

import (
	"errors"
	"fmt"
)

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidSource is returned when a Source's bounds or alignment are invalid.
	ErrInvalidSource = errors.New("invalid byte source bounds")

	// ErrShortRead is returned when a read past the source's end is attempted.
	ErrShortRead = errors.New("read past end of source")

	// ErrNoMagic is set by Scan as the Err of a descriptor whose PEB-sized
	// chunk has no UBI magic, and returned by DetectBlockSize and
	// DetectLEBSize when no usable magic is found.
	ErrNoMagic = errors.New("no UBI magic found")

	// ErrHeaderCRC is returned when an EC or VID header fails CRC verification.
	ErrHeaderCRC = errors.New("ubi: header CRC mismatch")

	// ErrNoLayout is returned when an image has no layout volume at all.
	ErrNoLayout = errors.New("ubi: image has no layout volume")
)

// HeaderError wraps a CRC or parse failure with the PEB it occurred in, so warn-mode
// logging can name the offending block the way spec §7 requires.
type HeaderError struct {
	Peb int64
	Off int64
	Err error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("ubi: peb=%d off=0x%x: %s", e.Peb, e.Off, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}
