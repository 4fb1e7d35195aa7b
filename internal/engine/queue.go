package engine

import (
	"github.com/NamanBalaji/otad/internal/ota"
)

// slot holds at most one pending offer. Sends never block: a full slot
// refuses the offer.
type slot struct {
	ch chan ota.Offer
}

func newSlot() *slot {
	return &slot{ch: make(chan ota.Offer, 1)}
}

// put hands the offer over to the worker. It reports false when an offer is
// already pending.
func (s *slot) put(offer ota.Offer) bool {
	select {
	case s.ch <- offer:
		return true
	default:
		return false
	}
}

// drain removes a pending offer, if any.
func (s *slot) drain() (ota.Offer, bool) {
	select {
	case offer := <-s.ch:
		return offer, true
	default:
		return ota.Offer{}, false
	}
}
