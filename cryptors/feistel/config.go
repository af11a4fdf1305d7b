package feistel

import (
	"fmt"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/feistel/cryptors/bitops"
	"github.com/bgallie/feistel/cryptors/permutator"
	"github.com/bgallie/feistel/cryptors/substitutor"
)

// Config is the table set driving a network.  All tables index bits from
// zero, most significant bit of the first byte first.  The number of rounds
// is len(Shifts).
type Config struct {
	BlockBits int `mapstructure:"block_bits"`
	KeyBits   int `mapstructure:"key_bits"`

	InitialPermutation []int `mapstructure:"initial_permutation"`
	// FinalPermutation defaults to the inverse of InitialPermutation.
	FinalPermutation []int `mapstructure:"final_permutation"`

	// Expansion widens the right half; its length is the round key width.
	Expansion        []int   `mapstructure:"expansion"`
	SBoxIn           int     `mapstructure:"sbox_in"`
	SBoxOut          int     `mapstructure:"sbox_out"`
	SBoxes           [][]int `mapstructure:"sboxes"`
	RoundPermutation []int   `mapstructure:"round_permutation"`

	// KeyLeft and KeyRight select the two key halves that are rotated by
	// Shifts[i] before round i; KeyCompression picks the round key out of
	// the merged halves.
	KeyLeft        []int `mapstructure:"key_left"`
	KeyRight       []int `mapstructure:"key_right"`
	KeyCompression []int `mapstructure:"key_compression"`
	Shifts         []int `mapstructure:"shifts"`

	// WordAligned selects word granular buffers for the whole network.
	WordAligned bool `mapstructure:"word_aligned"`
}

// Tables is a compiled, validated Config.
type Tables struct {
	blockBits int
	keyBits   int
	half      int
	subBits   int
	gran      bitops.Granularity

	ip         *permutator.Table
	fp         *permutator.Table
	expansion  *permutator.Table
	box        *substitutor.Box
	roundPerm  *permutator.Table
	keyLeft    *permutator.Table
	keyRight   *permutator.Table
	keyCompose *permutator.Table
	shifts     []int
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", cryptors.ErrConfiguration, fmt.Sprintf(format, args...))
}

// table builds a named permutation table and checks its destination width.
// A bad entry is reported as a configuration error that still matches
// bitops.ErrIndex.
func table(name string, idx []int, srcBits, wantLen int) (*permutator.Table, error) {
	if wantLen >= 0 && len(idx) != wantLen {
		return nil, configError("%s has %d entries, want %d", name, len(idx), wantLen)
	}
	t, err := permutator.Named(name, idx, srcBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cryptors.ErrConfiguration, err)
	}
	return t, nil
}

// Compile validates every width relationship between the tables and returns
// them ready for use.  It is the only place configuration errors arise.
func (c *Config) Compile() (*Tables, error) {
	if c.BlockBits <= 0 || c.BlockBits%2 != 0 {
		return nil, configError("block width %d is not a positive even number", c.BlockBits)
	}
	if c.KeyBits <= 0 {
		return nil, configError("key width %d is not positive", c.KeyBits)
	}
	if len(c.Shifts) == 0 {
		return nil, configError("no rounds: shift table is empty")
	}
	for i, s := range c.Shifts {
		if s < 0 {
			return nil, configError("shift %d is negative (%d)", i, s)
		}
	}

	t := &Tables{
		blockBits: c.BlockBits,
		keyBits:   c.KeyBits,
		half:      c.BlockBits / 2,
		gran:      bitops.ByteGranular,
		shifts:    append([]int(nil), c.Shifts...),
	}
	if c.WordAligned {
		t.gran = bitops.WordGranular
	}

	var err error
	if t.ip, err = table("initial permutation", c.InitialPermutation, c.BlockBits, c.BlockBits); err != nil {
		return nil, err
	}
	if len(c.FinalPermutation) == 0 {
		if t.fp, err = t.ip.Inverse(); err != nil {
			return nil, fmt.Errorf("final permutation: %w", err)
		}
	} else if t.fp, err = table("final permutation", c.FinalPermutation, c.BlockBits, c.BlockBits); err != nil {
		return nil, err
	}

	if len(c.Expansion) == 0 {
		return nil, configError("expansion table is empty")
	}
	if t.expansion, err = table("expansion", c.Expansion, t.half, -1); err != nil {
		return nil, err
	}
	if t.box, err = substitutor.New(c.SBoxIn, c.SBoxOut, c.SBoxes); err != nil {
		return nil, err
	}
	t.subBits = t.box.OutputBits(t.expansion.Len())
	if t.roundPerm, err = table("round permutation", c.RoundPermutation, t.subBits, t.half); err != nil {
		return nil, err
	}

	if len(c.KeyLeft) == 0 || len(c.KeyRight) == 0 {
		return nil, configError("key split tables must both be non-empty")
	}
	if t.keyLeft, err = table("key left", c.KeyLeft, c.KeyBits, -1); err != nil {
		return nil, err
	}
	if t.keyRight, err = table("key right", c.KeyRight, c.KeyBits, -1); err != nil {
		return nil, err
	}
	merged := t.keyLeft.Len() + t.keyRight.Len()
	if t.keyCompose, err = table("key compression", c.KeyCompression, merged, t.expansion.Len()); err != nil {
		return nil, err
	}
	return t, nil
}

// Rounds returns the number of rounds.
func (t *Tables) Rounds() int { return len(t.shifts) }

// BlockBits returns the block width in bits.
func (t *Tables) BlockBits() int { return t.blockBits }

// KeyBits returns the master key width in bits.
func (t *Tables) KeyBits() int { return t.keyBits }

// RoundKeyBits returns the width of every round key.
func (t *Tables) RoundKeyBits() int { return t.expansion.Len() }

// Granularity returns the storage granularity used by the network.
func (t *Tables) Granularity() bitops.Granularity { return t.gran }

// Permutations returns the bit selection tables in the order a block and
// its key meet them.
func (t *Tables) Permutations() []*permutator.Table {
	return []*permutator.Table{t.ip, t.expansion, t.roundPerm, t.fp, t.keyLeft, t.keyRight, t.keyCompose}
}

// SBox returns the substitution stage.
func (t *Tables) SBox() *substitutor.Box { return t.box }
