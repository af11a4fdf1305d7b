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
	"bufio"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/filters/ascii85"
	"github.com/bgallie/filters/flate"
	"github.com/bgallie/filters/lines"
	"github.com/bgallie/filters/pem"
	"github.com/spf13/cobra"
)

const (
	modeECB    = "ecb"
	modeCBC    = "cbc"
	headerMark = "+FNET"
	pemType    = "FNET Encrypted Message"
)

var (
	useASCII85  bool // Flag: True to use ascii85 encoding.
	useBinary   bool // Flag: True to output pure binary (no encoding).
	usePem      bool // Flag: True to use PEM encoding.
	compression bool // Flag: True to compress the file.
	modeName    string
)

// encryptCmd represents the encrypt command
var encryptCmd = &cobra.Command{
	Use:   "encrypt [secret...]",
	Short: "Encrypt plaintext using the Feistel network",
	Long:  `Encrypt plaintext with the Feistel network built from the selected table set.`,
	Run: func(cmd *cobra.Command, args []string) {
		useBinary = !(useASCII85 || usePem)
		encrypt(args)
	},
}

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:        "encode [secret...]",
	Short:      "Encode plaintext using the Feistel network",
	Long:       `[DEPRECATED] Encode plaintext with the Feistel network built from the selected table set.`,
	Deprecated: "use \"encrypt\" instead.",
	Run: func(cmd *cobra.Command, args []string) {
		useBinary = !(useASCII85 || usePem)
		encrypt(args)
	},
}

func init() {
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(encodeCmd)
	for _, c := range []*cobra.Command{encryptCmd, encodeCmd} {
		c.Flags().BoolVarP(&useASCII85, "useASCII85", "a", false, "use ASCII85 encoding")
		c.Flags().BoolVarP(&usePem, "usePem", "p", false, "use PEM encoding.")
		c.Flags().BoolVarP(&compression, "compress", "c", false, "compress input file using flate")
		c.Flags().StringVarP(&modeName, "mode", "m", modeCBC, `block chaining mode, "ecb" or "cbc".
ecb encrypts every block independently and in parallel; cbc chains the blocks from a random IV.`)
	}
}

// encryptPayload pads plain and encrypts it in the selected mode.  The IV is
// nil for ecb.
func encryptPayload(ecm cryptors.Crypter, plain []byte) ([]byte, []byte, error) {
	bs := ecm.BlockSize()
	padded := cryptors.Pad(plain, bs)
	out := make([]byte, len(padded))

	switch modeName {
	case modeECB:
		if err := cryptors.ProcessBlocks(logContext(), ecm, out, padded, workers, false); err != nil {
			return nil, nil, err
		}
		return out, nil, nil
	case modeCBC:
		iv := make([]byte, bs)
		if _, err := rand.Read(iv); err != nil {
			return nil, nil, err
		}
		cipher.NewCBCEncrypter(ecm, iv).CryptBlocks(out, padded)
		return out, iv, nil
	default:
		return nil, nil, fmt.Errorf("unknown mode %q", modeName)
	}
}

func encrypt(args []string) {
	network := newNetwork(getSecret(args))
	fin, fout := getInputAndOutputFiles(true)
	defer fout.Close()

	var plain []byte
	var err error
	if compression {
		plain, err = io.ReadAll(flate.ToFlate(fin))
	} else {
		plain, err = io.ReadAll(fin)
	}
	checkError(err)
	logger.Debug().Int("bytes", len(plain)).Bool("compressed", compression).Msg("plaintext read")

	encText, iv, err := encryptPayload(network, plain)
	checkError(err)

	var blck pem.Block
	if usePem {
		blck.Headers = make(map[string]string)
		blck.Type = pemType
		if len(inputFileName) > 0 && inputFileName != "-" {
			blck.Headers["FileName"] = inputFileName
		}
		blck.Headers["Compression"] = fmt.Sprintf("%v", compression)
		blck.Headers["ApiLevel"] = strconv.Itoa(feistelApiLevel)
		blck.Headers["Mode"] = modeName
		blck.Headers["IV"] = hex.EncodeToString(iv)
	} else {
		headerLine := fmt.Sprintf("%s|%d|", headerMark, feistelApiLevel)
		if len(inputFileName) > 0 && inputFileName != "-" {
			headerLine += inputFileName
		}
		if useASCII85 {
			headerLine += "|a"
		} else {
			headerLine += "|b"
		}
		headerLine += fmt.Sprintf("|%v|%s|%s\n", compression, modeName, hex.EncodeToString(iv))
		_, err = fout.WriteString(headerLine)
		checkError(err)
	}

	if useBinary {
		_, err = fout.Write(encText)
	} else if useASCII85 {
		_, err = io.Copy(fout, lines.SplitToLines(ascii85.ToASCII85(bytesHelper(encText))))
	} else {
		_, err = io.Copy(fout, pem.ToPem(bufio.NewReader(bytesHelper(encText)), blck))
	}
	checkError(err)
	wg.Wait()
	logger.Debug().Int("bytes", len(encText)).Str("mode", modeName).Msg("ciphertext written")
}
