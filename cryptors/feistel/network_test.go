package feistel_test

import (
	"bytes"
	"context"
	"crypto/des"
	"encoding/hex"
	"errors"
	"math/rand"
	"testing"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/feistel/cryptors/bitops"
	"github.com/bgallie/feistel/cryptors/feistel"
	"github.com/bgallie/feistel/cryptors/proforma"
)

// desConfig returns the builtin tables with key split entry 9 set to the
// published DES value 53 (the demo set keeps 55), so the network can be
// checked against crypto/des with any key.
func desConfig(wordAligned bool) *feistel.Config {
	cfg := proforma.Demo()
	cfg.KeyRight[9] = 53
	cfg.WordAligned = wordAligned
	return cfg
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDemoFixture(t *testing.T) {
	n, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if n.BlockSize() != 8 || n.Rounds() != 16 {
		t.Fatalf("BlockSize %d Rounds %d, want 8 16", n.BlockSize(), n.Rounds())
	}

	ct := make([]byte, 8)
	n.Encrypt(ct, []byte("Hello world!"))
	if want := mustHex(t, "af35f6a184535f72"); !bytes.Equal(ct, want) {
		t.Errorf("Encrypt = %x, want %x", ct, want)
	}

	pt := make([]byte, 8)
	n.Decrypt(pt, ct)
	if string(pt) != "Hello wo" {
		t.Errorf("Decrypt = %q, want %q", pt, "Hello wo")
	}
}

func TestKnownVectors(t *testing.T) {
	tests := []struct {
		key, plain, cipher string
	}{
		{"133457799bbcdff1", "0123456789abcdef", "85e813540f0ab405"},
		{"0e329232ea6d0d73", "8787878787878787", "0000000000000000"},
		{"0000000000000000", "0000000000000000", "8ca64de9c1b123a7"},
	}
	for _, wordAligned := range []bool{false, true} {
		for _, tt := range tests {
			n, err := feistel.New(desConfig(wordAligned), mustHex(t, tt.key))
			if err != nil {
				t.Fatal(err)
			}
			got := make([]byte, 8)
			n.Encrypt(got, mustHex(t, tt.plain))
			if hex.EncodeToString(got) != tt.cipher {
				t.Errorf("word=%v key %s: Encrypt(%s) = %x, want %s", wordAligned, tt.key, tt.plain, got, tt.cipher)
			}
		}
	}
}

func TestMatchesStandardDES(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, wordAligned := range []bool{false, true} {
		for i := 0; i < 16; i++ {
			key := make([]byte, 8)
			r.Read(key)
			ref, err := des.NewCipher(key)
			if err != nil {
				t.Fatal(err)
			}
			pool := bitops.NewPoolAllocator(8)
			n, err := feistel.New(desConfig(wordAligned), key, feistel.WithAllocator(pool))
			if err != nil {
				t.Fatal(err)
			}

			for j := 0; j < 8; j++ {
				src := make([]byte, 8)
				r.Read(src)
				want := make([]byte, 8)
				ref.Encrypt(want, src)
				got := make([]byte, 8)
				n.Encrypt(got, src)
				if !bytes.Equal(got, want) {
					t.Fatalf("word=%v key %x block %x: got %x, crypto/des %x", wordAligned, key, src, got, want)
				}

				back := make([]byte, 8)
				n.Decrypt(back, got)
				if !bytes.Equal(back, src) {
					t.Fatalf("word=%v key %x: Decrypt(%x) = %x, want %x", wordAligned, key, got, back, src)
				}
			}
		}
	}
}

func TestFinalPermutationDefaultsToInverse(t *testing.T) {
	explicit, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := proforma.Demo()
	cfg.FinalPermutation = nil
	derived, err := feistel.New(cfg, []byte("SneppyRulez"))
	if err != nil {
		t.Fatal(err)
	}

	src := []byte("Feistel!")
	a, b := make([]byte, 8), make([]byte, 8)
	explicit.Encrypt(a, src)
	derived.Encrypt(b, src)
	if !bytes.Equal(a, b) {
		t.Errorf("explicit final permutation gave %x, derived gave %x", a, b)
	}
}

func TestRunStates(t *testing.T) {
	n, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"))
	if err != nil {
		t.Fatal(err)
	}
	block, err := n.Factory().FromBytes([]byte("Hello wo"), 64)
	if err != nil {
		t.Fatal(err)
	}
	run, err := n.Start(block, feistel.Encrypting)
	if err != nil {
		t.Fatal(err)
	}
	if run.State() != feistel.RoundInProgress || run.Round() != 0 {
		t.Fatalf("started run in %v round %d", run.State(), run.Round())
	}
	if _, err := run.Output(); !errors.Is(err, feistel.ErrRunPending) {
		t.Errorf("Output before the last round: error %v, want ErrRunPending", err)
	}

	for i := 0; i < n.Rounds(); i++ {
		if run.State() == feistel.Complete {
			t.Fatalf("run complete after %d rounds", i)
		}
		if err := run.Step(); err != nil {
			t.Fatalf("Step %d error: %v", i, err)
		}
	}
	if run.State() != feistel.Complete || run.Round() != n.Rounds() {
		t.Fatalf("after all rounds: %v round %d", run.State(), run.Round())
	}
	if err := run.Step(); !errors.Is(err, feistel.ErrRunComplete) {
		t.Errorf("Step after completion: error %v, want ErrRunComplete", err)
	}

	out, err := run.Output()
	if err != nil {
		t.Fatal(err)
	}
	if want := mustHex(t, "af35f6a184535f72"); !bytes.Equal(out.Bytes(), want) {
		t.Errorf("stepped output %x, want %x", out.Bytes(), want)
	}

	back, err := n.DecryptBuffer(out)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(block) {
		t.Errorf("DecryptBuffer gave %v, want %v", back, block)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[feistel.State]string{
		feistel.KeyScheduled:    "KeyScheduled",
		feistel.RoundInProgress: "RoundInProgress",
		feistel.Complete:        "Complete",
	} {
		if s.String() != want {
			t.Errorf("State %d String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

// tenBit is a toy network whose block is not a whole number of bytes.
func tenBit(r *rand.Rand) *feistel.Config {
	box := make([]int, 64)
	for i := range box {
		box[i] = r.Intn(32)
	}
	return &feistel.Config{
		BlockBits:          10,
		KeyBits:            10,
		InitialPermutation: r.Perm(10),
		Expansion:          []int{4, 0, 1, 2, 3, 4},
		SBoxIn:             6,
		SBoxOut:            5,
		SBoxes:             [][]int{box},
		RoundPermutation:   []int{4, 2, 0, 3, 1},
		KeyLeft:            []int{0, 1, 2, 3, 4},
		KeyRight:           []int{5, 6, 7, 8, 9},
		KeyCompression:     []int{0, 7, 2, 9, 4, 5},
		Shifts:             []int{1, 2, 1, 3},
	}
}

func TestOddWidthNetworkIsBijection(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for _, wordAligned := range []bool{false, true} {
		cfg := tenBit(r)
		cfg.WordAligned = wordAligned
		n, err := feistel.New(cfg, []byte{0x5A, 0xC0})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		if n.BlockSize() != 2 {
			t.Fatalf("BlockSize %d, want 2", n.BlockSize())
		}

		seen := make(map[[2]byte]bool)
		for v := 0; v < 1024; v++ {
			src := []byte{byte(v >> 2), byte(v << 6)}
			ct := make([]byte, 2)
			n.Encrypt(ct, src)
			if ct[1]&0x3F != 0 {
				t.Fatalf("ciphertext %x has padding bits set", ct)
			}
			seen[[2]byte{ct[0], ct[1]}] = true

			pt := make([]byte, 2)
			n.Decrypt(pt, ct)
			if !bytes.Equal(pt, src) {
				t.Fatalf("word=%v: Decrypt(Encrypt(%x)) = %x", wordAligned, src, pt)
			}
		}
		if len(seen) != 1024 {
			t.Errorf("word=%v: %d distinct ciphertexts, want 1024", wordAligned, len(seen))
		}
	}
}

func TestSchedule(t *testing.T) {
	n, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"))
	if err != nil {
		t.Fatal(err)
	}
	s := n.Schedule()
	if s.Len() != 16 {
		t.Fatalf("schedule has %d keys, want 16", s.Len())
	}
	for i := 0; i < s.Len(); i++ {
		if s.Key(i).Len() != n.Tables().RoundKeyBits() {
			t.Errorf("round key %d is %d bits", i, s.Key(i).Len())
		}
	}
}

func TestShortKey(t *testing.T) {
	if _, err := feistel.New(proforma.Demo(), []byte("short")); !errors.Is(err, cryptors.ErrConfiguration) {
		t.Errorf("5 byte key: error %v, want ErrConfiguration", err)
	}
}

func TestStartChecksWidth(t *testing.T) {
	n, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"))
	if err != nil {
		t.Fatal(err)
	}
	block, _ := bitops.New(32, bitops.WordGranular)
	if _, err := n.Start(block, feistel.Encrypting); !errors.Is(err, cryptors.ErrConfiguration) {
		t.Errorf("32 bit block: error %v, want ErrConfiguration", err)
	}
}

func TestCryptPanicsOnShortBlock(t *testing.T) {
	n, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Encrypt of a 4 byte block did not panic")
		}
	}()
	n.Encrypt(make([]byte, 8), make([]byte, 4))
}

var errInjected = errors.New("injected allocation failure")

// faultyAllocator fails the countdown'th allocation after being armed.
type faultyAllocator struct {
	bitops.HeapAllocator
	armed     bool
	countdown int
}

func (a *faultyAllocator) Alloc(size int) ([]byte, error) {
	if a.armed {
		if a.countdown--; a.countdown == 0 {
			a.armed = false
			return nil, errInjected
		}
	}
	return a.HeapAllocator.Alloc(size)
}

func TestFailedFinalRoundCanBeRetried(t *testing.T) {
	// The last round allocates the expansion, substitution, round
	// permutation, merged halves and output block, in that order.
	for failAt := 1; failAt <= 5; failAt++ {
		alloc := &faultyAllocator{}
		n, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"), feistel.WithAllocator(alloc))
		if err != nil {
			t.Fatal(err)
		}
		block, err := n.Factory().FromBytes([]byte("Hello wo"), 64)
		if err != nil {
			t.Fatal(err)
		}
		run, err := n.Start(block, feistel.Encrypting)
		if err != nil {
			t.Fatal(err)
		}
		for run.Round() < n.Rounds()-1 {
			if err := run.Step(); err != nil {
				t.Fatal(err)
			}
		}

		alloc.armed, alloc.countdown = true, failAt
		if err := run.Step(); !errors.Is(err, bitops.ErrAllocation) {
			t.Fatalf("allocation %d: Step error %v, want ErrAllocation", failAt, err)
		}
		if run.State() != feistel.RoundInProgress || run.Round() != n.Rounds()-1 {
			t.Fatalf("allocation %d: failed Step left %v round %d", failAt, run.State(), run.Round())
		}

		out, err := run.Finish()
		if err != nil {
			t.Fatalf("allocation %d: retry error %v", failAt, err)
		}
		if want := mustHex(t, "af35f6a184535f72"); !bytes.Equal(out.Bytes(), want) {
			t.Errorf("allocation %d: retried output %x, want %x", failAt, out.Bytes(), want)
		}
	}
}

func TestPooledNetworkOnManyWorkers(t *testing.T) {
	pool := bitops.NewPoolAllocator(8)
	n, err := feistel.New(proforma.Demo(), []byte("SneppyRulez"), feistel.WithAllocator(pool))
	if err != nil {
		t.Fatal(err)
	}

	r := rand.New(rand.NewSource(3))
	src := make([]byte, 2000*n.BlockSize())
	r.Read(src)
	want := make([]byte, len(src))
	for off := 0; off < len(src); off += n.BlockSize() {
		n.Encrypt(want[off:], src[off:])
	}

	got := make([]byte, len(src))
	if err := cryptors.ProcessBlocks(context.Background(), n, got, src, 8, false); err != nil {
		t.Fatalf("ProcessBlocks error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("parallel encryption differs from serial")
	}

	back := make([]byte, len(src))
	if err := cryptors.ProcessBlocks(context.Background(), n, back, got, 8, true); err != nil {
		t.Fatalf("ProcessBlocks error: %v", err)
	}
	if !bytes.Equal(back, src) {
		t.Fatal("parallel decryption did not restore the input")
	}
}
