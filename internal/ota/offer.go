package ota

import (
	"fmt"

	"github.com/NamanBalaji/otad/internal/errors"
)

// MaxChecksumLen is the size of the checksum field of an offer.
const MaxChecksumLen = 32

var ErrInvalidOffer = errors.New("invalid update offer")

// Offer announces an available firmware image.
type Offer struct {
	TargetVersion string
	Checksum      string // not verified
	URL           string
	PackageSize   int64
	Description   string
}

// Validate rejects offers missing a version, checksum or URL.
func (o Offer) Validate() error {
	switch {
	case o.TargetVersion == "":
		return fmt.Errorf("%w: empty target version", ErrInvalidOffer)
	case o.Checksum == "":
		return fmt.Errorf("%w: empty checksum", ErrInvalidOffer)
	case len(o.Checksum) > MaxChecksumLen:
		return fmt.Errorf("%w: checksum longer than %d bytes", ErrInvalidOffer, MaxChecksumLen)
	case o.URL == "":
		return fmt.Errorf("%w: empty url", ErrInvalidOffer)
	case o.PackageSize < 0:
		return fmt.Errorf("%w: negative package size", ErrInvalidOffer)
	}

	return nil
}
