package feistel

import (
	"fmt"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/feistel/cryptors/bitops"
)

// Schedule is the ordered set of round keys derived from a master key.  It
// is never modified after NewSchedule returns and may be read from any
// number of goroutines.
type Schedule struct {
	keys []*bitops.Buffer
}

// NewSchedule derives one round key per round: the master key is split into
// two halves, both halves are rotated left by the round's shift, and the
// merged halves are compressed to the round key width.  Rotations
// accumulate from round to round.
func NewSchedule(key *bitops.Buffer, t *Tables) (*Schedule, error) {
	if key.Len() != t.keyBits {
		return nil, fmt.Errorf("%w: key has %d bits, tables expect %d", cryptors.ErrConfiguration, key.Len(), t.keyBits)
	}

	c, err := t.keyLeft.Apply(key)
	if err != nil {
		return nil, err
	}
	defer c.Release()
	d, err := t.keyRight.Apply(key)
	if err != nil {
		return nil, err
	}
	defer d.Release()

	s := &Schedule{keys: make([]*bitops.Buffer, len(t.shifts))}
	for i, shift := range t.shifts {
		c.RotateLeft(shift)
		d.RotateLeft(shift)

		cd, err := c.Merge(d)
		if err != nil {
			return nil, err
		}
		s.keys[i], err = t.keyCompose.Apply(cd)
		cd.Release()
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Len returns the number of round keys.
func (s *Schedule) Len() int {
	return len(s.keys)
}

// Key returns round key i.  The buffer is shared; callers must not modify
// it.
func (s *Schedule) Key(i int) *bitops.Buffer {
	return s.keys[i]
}
