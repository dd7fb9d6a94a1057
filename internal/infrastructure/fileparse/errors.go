package fileparse

import "errors"

// Structural file errors. Any of these quarantines the whole file; no
// row-level processing is attempted.
var (
	// ErrEmptyFile is returned when the file has no content
	ErrEmptyFile = errors.New("file is empty")

	// ErrInvalidEncoding is returned when the bytes are neither valid
	// UTF-8 nor decodable with the declared/fallback encoding
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrUnsupportedEncoding is returned for an unknown encoding hint
	ErrUnsupportedEncoding = errors.New("unsupported encoding hint")

	// ErrMissingHeader is returned when the declared header row is absent
	ErrMissingHeader = errors.New("file missing header row")

	// ErrNoDataRows is returned when the file has headers but no data
	ErrNoDataRows = errors.New("file contains no data rows")
)
