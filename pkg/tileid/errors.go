package tileid

import "fmt"

// ErrInvalidTileID indicates tile coordinates outside the valid domain.
type ErrInvalidTileID struct {
	Z      uint8
	X, Y   uint32
	Reason string
}

func (e *ErrInvalidTileID) Error() string {
	return fmt.Sprintf("invalid tile id %d/%d/%d: %s", e.Z, e.X, e.Y, e.Reason)
}
