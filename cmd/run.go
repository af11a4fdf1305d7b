/*
Copyright © 2021 Billy G. Allie <bill.allie@defiant.mug.org>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bgallie/feistel/cryptors/bitops"
	"github.com/bgallie/feistel/cryptors/feistel"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	plaintext  string
	runKey     string
	iterations int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Encrypt one block and print it",
	Long: `Encrypt the first block of the plaintext with the given key and print the
input and output blocks in hexadecimal.  A short plaintext is padded with zero
bytes.  With -n the block is encrypted that many times to time the network.`,
	Run: func(cmd *cobra.Command, args []string) {
		demo()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&plaintext, "plaintext", "Hello world!", "the plaintext to encrypt")
	runCmd.Flags().StringVar(&runKey, "key", "SneppyRulez", "the secret key")
	runCmd.Flags().IntVarP(&iterations, "iterations", "n", 1, "number of times to encrypt the block")
}

// firstBlock returns the first block of text, zero padded.
func firstBlock(text string, bs int) []byte {
	blk := make([]byte, bs)
	copy(blk, text)
	return blk
}

// traceRun steps through every round of one block, logging the halves as
// they change.
func traceRun(network *feistel.Network, block *bitops.Buffer) (*bitops.Buffer, error) {
	run, err := network.Start(block, feistel.Encrypting)
	if err != nil {
		return nil, err
	}
	for run.State() != feistel.Complete {
		round := run.Round()
		if err := run.Step(); err != nil {
			return nil, err
		}
		logger.Debug().Int("round", round).Stringer("state", run.State()).Msg("round done")
	}
	return run.Output()
}

// repeat encrypts block n times spread over the worker goroutines.
func repeat(network *feistel.Network, block *bitops.Buffer, n int) error {
	w := workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(w)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, err := network.EncryptBuffer(block)
			if err != nil {
				return err
			}
			out.Release()
			return nil
		})
	}
	return g.Wait()
}

func demo() {
	network := newNetwork(decodeKey(runKey))
	blockBits := network.Tables().BlockBits()
	in, err := network.Factory().FromBytes(firstBlock(plaintext, network.BlockSize()), blockBits)
	cobra.CheckErr(err)
	defer in.Release()

	out, err := traceRun(network, in)
	cobra.CheckErr(err)
	defer out.Release()

	back, err := network.DecryptBuffer(out)
	cobra.CheckErr(err)
	defer back.Release()
	if !back.Equal(in) {
		cobra.CheckErr("decrypted block does not match the input")
	}

	fmt.Printf("input:  %x\n", in.Bytes())
	fmt.Printf("output: %x\n", out.Bytes())

	if iterations > 1 {
		start := time.Now()
		cobra.CheckErr(repeat(network, in, iterations))
		elapsed := time.Since(start)
		logger.Info().
			Int("iterations", iterations).
			Dur("elapsed", elapsed).
			Float64("blocksPerSecond", float64(iterations)/elapsed.Seconds()).
			Msg("timing")
	}
}
