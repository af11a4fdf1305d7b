// Package feistel composes the permutation and substitution engines into a
// configurable Feistel network.
//
// Every round expands the right half, mixes in the round key, substitutes
// back down to half width, shuffles the result and folds it into the left
// half.  The halves swap after every round except the last, so running the
// same network with the round keys reversed undoes it.
package feistel

import (
	"errors"
	"fmt"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/feistel/cryptors/bitops"
)

// Direction selects the order in which round keys are consumed.
type Direction int

const (
	Encrypting Direction = iota
	Decrypting
)

func (d Direction) String() string {
	if d == Decrypting {
		return "decrypt"
	}
	return "encrypt"
}

// State is the position of a Run in the round sequence.  KeyScheduled is
// what New establishes; Start moves a block to RoundInProgress at round 0
// and the last Step moves it to Complete.
type State int

const (
	KeyScheduled State = iota
	RoundInProgress
	Complete
)

func (s State) String() string {
	switch s {
	case KeyScheduled:
		return "KeyScheduled"
	case RoundInProgress:
		return "RoundInProgress"
	case Complete:
		return "Complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrRunComplete is returned by Step once the output block exists.
	ErrRunComplete = errors.New("feistel: run already complete")
	// ErrRunPending is returned by Output before the last round.
	ErrRunPending = errors.New("feistel: run not complete")
)

// Network is a keyed Feistel network.  Its tables and round keys are read
// only, so one Network can serve many goroutines; each Run owns its own
// buffers.
type Network struct {
	tables  *Tables
	keys    *Schedule
	factory bitops.Factory
}

// Option configures a Network.
type Option func(*Network)

// WithAllocator makes every buffer of the network come from a.
func WithAllocator(a bitops.Allocator) Option {
	return func(n *Network) {
		n.factory.Allocator = a
	}
}

// New compiles cfg and schedules key.  The first KeyBits bits of key are
// used; a shorter key is a configuration error.
func New(cfg *Config, key []byte, opts ...Option) (*Network, error) {
	t, err := cfg.Compile()
	if err != nil {
		return nil, err
	}
	return NewFromTables(t, key, opts...)
}

// NewFromTables is New for tables that are already compiled.
func NewFromTables(t *Tables, key []byte, opts ...Option) (*Network, error) {
	n := &Network{tables: t, factory: bitops.Factory{Granularity: t.gran}}
	for _, opt := range opts {
		opt(n)
	}

	if len(key)*cryptors.BitsPerByte < t.keyBits {
		return nil, fmt.Errorf("%w: key is %d bytes, need %d bits", cryptors.ErrConfiguration, len(key), t.keyBits)
	}
	kb, err := n.factory.FromBytes(key, t.keyBits)
	if err != nil {
		return nil, err
	}
	defer kb.Release()

	if n.keys, err = NewSchedule(kb, t); err != nil {
		return nil, err
	}
	return n, nil
}

// Tables returns the compiled tables.
func (n *Network) Tables() *Tables { return n.tables }

// Schedule returns the round keys.
func (n *Network) Schedule() *Schedule { return n.keys }

// Rounds returns the number of rounds.
func (n *Network) Rounds() int { return n.tables.Rounds() }

// Factory returns the factory used for all network buffers.
func (n *Network) Factory() bitops.Factory { return n.factory }

// round computes P(S(E(right) ^ key)).
func (n *Network) round(right, key *bitops.Buffer) (*bitops.Buffer, error) {
	t := n.tables
	e, err := t.expansion.Apply(right)
	if err != nil {
		return nil, err
	}
	e.XorInPlace(key)

	s, err := t.box.Apply(e, t.subBits)
	e.Release()
	if err != nil {
		return nil, err
	}

	p, err := t.roundPerm.Apply(s)
	s.Release()
	return p, err
}

// Run is one block travelling through the network.
type Run struct {
	n     *Network
	dir   Direction
	state State
	round int
	l, r  *bitops.Buffer
	out   *bitops.Buffer
}

// Start applies the initial permutation to block, splits it into halves
// and returns a run positioned before round 0.  Buffers created by the run
// share the factory of block.
func (n *Network) Start(block *bitops.Buffer, dir Direction) (*Run, error) {
	t := n.tables
	if block.Len() != t.blockBits {
		return nil, fmt.Errorf("%w: block has %d bits, network expects %d", cryptors.ErrConfiguration, block.Len(), t.blockBits)
	}

	x, err := t.ip.Apply(block)
	if err != nil {
		return nil, err
	}
	defer x.Release()

	run := &Run{n: n, dir: dir, state: RoundInProgress}
	if run.l, err = x.SliceBits(0, t.half); err != nil {
		return nil, err
	}
	if run.r, err = x.SliceBits(t.half, t.blockBits); err != nil {
		return nil, err
	}
	return run, nil
}

// State returns the current state.
func (r *Run) State() State { return r.state }

// Round returns the index of the next round to run.
func (r *Run) Round() int { return r.round }

func (r *Run) keyIndex() int {
	if r.dir == Decrypting {
		return r.n.Rounds() - 1 - r.round
	}
	return r.round
}

// Step runs a single round.  The last round does not swap the halves and is
// followed by the final permutation, after which the run is Complete.
func (r *Run) Step() error {
	if r.state == Complete {
		return ErrRunComplete
	}

	f, err := r.n.round(r.r, r.n.keys.Key(r.keyIndex()))
	if err != nil {
		return err
	}

	if r.round < r.n.Rounds()-1 {
		f.XorInPlace(r.l)
		r.l.Release()
		r.l, r.r = r.r, f
		r.round++
		return nil
	}

	// The halves stay untouched until the output block exists, so a failed
	// final round can be stepped again.
	f.XorInPlace(r.l)
	merged, err := f.Merge(r.r)
	f.Release()
	if err != nil {
		return err
	}
	out, err := r.n.tables.fp.Apply(merged)
	merged.Release()
	if err != nil {
		return err
	}

	r.l.Release()
	r.r.Release()
	r.out = out
	r.round++
	r.state = Complete
	return nil
}

// Output returns the output block of a complete run.  The buffer belongs to
// the caller.
func (r *Run) Output() (*bitops.Buffer, error) {
	if r.state != Complete {
		return nil, ErrRunPending
	}
	return r.out, nil
}

// Finish runs every remaining round and returns the output block.
func (r *Run) Finish() (*bitops.Buffer, error) {
	for r.state != Complete {
		if err := r.Step(); err != nil {
			return nil, err
		}
	}
	return r.out, nil
}

// Process runs block through every round in direction dir.
func (n *Network) Process(block *bitops.Buffer, dir Direction) (*bitops.Buffer, error) {
	run, err := n.Start(block, dir)
	if err != nil {
		return nil, err
	}
	return run.Finish()
}

// EncryptBuffer is Process(block, Encrypting).
func (n *Network) EncryptBuffer(block *bitops.Buffer) (*bitops.Buffer, error) {
	return n.Process(block, Encrypting)
}

// DecryptBuffer is Process(block, Decrypting).
func (n *Network) DecryptBuffer(block *bitops.Buffer) (*bitops.Buffer, error) {
	return n.Process(block, Decrypting)
}

// BlockSize returns the block size in bytes, rounded up for block widths
// that are not a whole number of bytes.
func (n *Network) BlockSize() int {
	return (n.tables.blockBits + cryptors.BitsPerByte - 1) / cryptors.BitsPerByte
}

// Encrypt encrypts the first block of src into dst, satisfying
// crypto/cipher.Block.  Like the standard library ciphers it panics on short
// buffers.
func (n *Network) Encrypt(dst, src []byte) {
	n.crypt(dst, src, Encrypting)
}

// Decrypt decrypts the first block of src into dst.
func (n *Network) Decrypt(dst, src []byte) {
	n.crypt(dst, src, Decrypting)
}

func (n *Network) crypt(dst, src []byte, dir Direction) {
	bs := n.BlockSize()
	if len(src) < bs {
		panic("feistel: input not full block")
	}
	if len(dst) < bs {
		panic("feistel: output not full block")
	}

	in, err := n.factory.FromBytes(src, n.tables.blockBits)
	if err != nil {
		panic(err)
	}
	out, err := n.Process(in, dir)
	in.Release()
	if err != nil {
		panic(err)
	}
	copy(dst[:bs], out.Bytes())
	out.Release()
}
