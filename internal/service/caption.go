package service

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"dailypost/internal/core/ports"
)

// FixedCaption always returns the same caption.
type FixedCaption string

func (c FixedCaption) Caption() string { return string(c) }

// RandomCaption picks uniformly from a caption bank.
type RandomCaption struct {
	bank []string
	rng  *rand.Rand
}

func NewRandomCaption(bank []string, rng *rand.Rand) (*RandomCaption, error) {
	if len(bank) == 0 {
		return nil, errors.New("caption bank is empty")
	}
	if rng == nil {
		rng = newRand()
	}
	return &RandomCaption{bank: append([]string(nil), bank...), rng: rng}, nil
}

func (c *RandomCaption) Caption() string {
	return c.bank[c.rng.IntN(len(c.bank))]
}

// NewCaptionPolicy builds the policy named by mode ("random" or "fixed").
// Fixed mode uses the first caption in the bank.
func NewCaptionPolicy(mode string, captions []string, rng *rand.Rand) (ports.CaptionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "random":
		return NewRandomCaption(captions, rng)
	case "fixed":
		if len(captions) == 0 {
			return nil, errors.New("fixed caption mode needs one caption")
		}
		return FixedCaption(captions[0]), nil
	default:
		return nil, fmt.Errorf("unknown caption mode %q", mode)
	}
}
