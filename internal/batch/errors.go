package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksum marks a record whose trailing XOR byte does not match.
	ErrChecksum = errors.New("batch: checksum mismatch")

	// ErrFraming is returned when record boundaries cannot be found.
	ErrFraming = errors.New("batch: bad framing")

	// ErrUnknownVersion is returned for a record version with no known layout.
	ErrUnknownVersion = errors.New("batch: unknown record version")
)

// ChecksumError identifies one corrupt record. It matches ErrChecksum.
type ChecksumError struct {
	Offset int
	Want   byte
	Got    byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("batch: checksum mismatch at offset %d: record says %#02x, computed %#02x", e.Offset, e.Want, e.Got)
}

// Unwrap returns ErrChecksum.
func (e *ChecksumError) Unwrap() error {
	return ErrChecksum
}
