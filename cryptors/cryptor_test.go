package cryptors_test

import (
	"bytes"
	"context"
	"crypto/des"
	"errors"
	"math/rand"
	"testing"

	"github.com/bgallie/feistel/cryptors"
)

func TestProcessBlocksMatchesSerial(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	key := make([]byte, 8)
	r.Read(key)
	ecm, err := des.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}

	src := make([]byte, 1000*ecm.BlockSize())
	r.Read(src)
	want := make([]byte, len(src))
	for off := 0; off < len(src); off += ecm.BlockSize() {
		copy(want[off:], cryptors.Encrypt(ecm, append([]byte(nil), src[off:off+ecm.BlockSize()]...)))
	}

	for _, workers := range []int{0, 1, 3, 64} {
		got := make([]byte, len(src))
		if err := cryptors.ProcessBlocks(context.Background(), ecm, got, src, workers, false); err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("workers=%d: parallel output differs from serial", workers)
		}

		back := make([]byte, len(src))
		if err := cryptors.ProcessBlocks(context.Background(), ecm, back, got, workers, true); err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if !bytes.Equal(back, src) {
			t.Fatalf("workers=%d: decrypting did not restore the input", workers)
		}
	}
}

func TestProcessBlocksErrors(t *testing.T) {
	ecm, _ := des.NewCipher(make([]byte, 8))
	if err := cryptors.ProcessBlocks(context.Background(), ecm, make([]byte, 16), make([]byte, 12), 1, false); err == nil {
		t.Error("partial block accepted")
	}
	if err := cryptors.ProcessBlocks(context.Background(), ecm, make([]byte, 8), make([]byte, 16), 1, false); err == nil {
		t.Error("short destination accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cryptors.ProcessBlocks(ctx, ecm, make([]byte, 64), make([]byte, 64), 1, false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: error %v, want context.Canceled", err)
	}
}

func TestDecryptUndoesEncrypt(t *testing.T) {
	ecm, _ := des.NewCipher([]byte("8bytekey"))
	blk := []byte("plaintxt")
	cryptors.Encrypt(ecm, blk)
	if string(blk) == "plaintxt" {
		t.Fatal("Encrypt left the block unchanged")
	}
	if got := cryptors.Decrypt(ecm, blk); string(got) != "plaintxt" {
		t.Errorf("Decrypt gave %q", got)
	}
}
