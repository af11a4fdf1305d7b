// Package cryptors holds what the bit level engines share: the
// configuration error, the block crypter interface and a machine that runs
// a crypter over many independent blocks at once.
package cryptors

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	BitsPerByte = 8
	// MinBlocksPerWorker keeps tiny inputs on a single goroutine.
	MinBlocksPerWorker = 64
)

// ErrConfiguration reports a table whose width does not fit the buffer it
// is applied to.  It is raised once, when tables or schedules are built.
var ErrConfiguration = errors.New("configuration error")

// Crypter is a fixed size block transformation.  The feistel network
// satisfies it, as does every crypto/cipher block.
type Crypter interface {
	cipher.Block
}

// Encrypt transforms one block in place.
func Encrypt(ecm Crypter, blk []byte) []byte {
	ecm.Encrypt(blk, blk)
	return blk
}

// Decrypt undoes Encrypt for one block in place.
func Decrypt(ecm Crypter, blk []byte) []byte {
	ecm.Decrypt(blk, blk)
	return blk
}

// ProcessBlocks runs ecm over every block of src, writing to dst, with up to
// workers goroutines (0 means GOMAXPROCS).  Blocks are independent, so each
// worker owns a disjoint stripe of dst; the crypter itself is shared and
// must be safe for concurrent use, which it is when its key material is
// read only.  Cancellation is checked between blocks.
func ProcessBlocks(ctx context.Context, ecm Crypter, dst, src []byte, workers int, decrypt bool) error {
	bs := ecm.BlockSize()
	if len(src)%bs != 0 {
		return fmt.Errorf("input is %d bytes, not a multiple of the %d byte block", len(src), bs)
	}
	if len(dst) < len(src) {
		return fmt.Errorf("output is %d bytes, input needs %d", len(dst), len(src))
	}

	blocks := len(src) / bs
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if maxWorkers := (blocks + MinBlocksPerWorker - 1) / MinBlocksPerWorker; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 1 {
		workers = 1
	}

	log := zerolog.Ctx(ctx)
	log.Debug().Int("blocks", blocks).Int("workers", workers).Bool("decrypt", decrypt).Msg("processing blocks")

	transform := ecm.Encrypt
	if decrypt {
		transform = ecm.Decrypt
	}

	g, ctx := errgroup.WithContext(ctx)
	per := (blocks + workers - 1) / workers
	for w := 0; w < workers; w++ {
		first, last := w*per, (w+1)*per
		if last > blocks {
			last = blocks
		}
		if first >= last {
			break
		}
		g.Go(func() error {
			for i := first; i < last; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				off := i * bs
				transform(dst[off:off+bs], src[off:off+bs])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug().Int("blocks", blocks).Msg("blocks done")
	return nil
}
