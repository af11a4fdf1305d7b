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
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/filters/ascii85"
	"github.com/bgallie/filters/flate"
	"github.com/bgallie/filters/lines"
	"github.com/bgallie/filters/pem"
	"github.com/spf13/cobra"
)

// decryptCmd represents the decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt [secret...]",
	Short: "Decrypt a Feistel network encrypted file.",
	Long:  `Decrypt a file encrypted by the Feistel network built from the selected table set.`,
	Run: func(cmd *cobra.Command, args []string) {
		decrypt(args)
	},
}

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:        "decode [secret...]",
	Short:      "Decode a Feistel network encoded file.",
	Long:       `[DEPRECATED] Decode a file encoded by the Feistel network built from the selected table set.`,
	Deprecated: "use \"decrypt\" instead.",
	Run: func(cmd *cobra.Command, args []string) {
		decrypt(args)
	},
}

func init() {
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(decodeCmd)
}

// fromBinaryHelper provides the means to inject the pure binary input
// into the pipe stream used by the decrypt() function.  The data can
// be read using the returned PipeReader.
func fromBinaryHelper(rdr io.Reader) *io.PipeReader {
	rRdr, rWrtr := io.Pipe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer rWrtr.Close()
		_, err := io.Copy(rWrtr, rdr)
		checkError(err)
	}()
	return rRdr
}

// fileHeader is what the encrypt command records in front of the payload.
type fileHeader struct {
	apiLevel    int
	fileName    string
	ascii85     bool
	compression bool
	mode        string
	iv          []byte
}

// parseHeaderLine parses "+FNET|api|name|a or b|compression|mode|iv".
func parseHeaderLine(line string) (fileHeader, error) {
	var h fileHeader
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "|")
	if len(fields) != 7 || fields[0] != headerMark {
		return h, fmt.Errorf("unrecognized header line: %q", line)
	}
	var err error
	if h.apiLevel, err = strconv.Atoi(fields[1]); err != nil {
		return h, fmt.Errorf("bad api level %q: %w", fields[1], err)
	}
	h.fileName = fields[2]
	h.ascii85 = fields[3] == "a"
	h.compression = fields[4] == "true"
	h.mode = fields[5]
	if h.iv, err = hex.DecodeString(fields[6]); err != nil {
		return h, fmt.Errorf("bad IV %q: %w", fields[6], err)
	}
	return h, nil
}

// pemHeader reads the same information out of the PEM block headers.
func pemHeader(blck pem.Block) (fileHeader, error) {
	h := fileHeader{apiLevel: -1, mode: blck.Headers["Mode"]}
	if fal, exists := blck.Headers["ApiLevel"]; exists {
		var err error
		if h.apiLevel, err = strconv.Atoi(fal); err != nil {
			return h, fmt.Errorf("bad api level %q: %w", fal, err)
		}
	}
	h.fileName = blck.Headers["FileName"]
	h.compression = blck.Headers["Compression"] == "true"
	var err error
	if h.iv, err = hex.DecodeString(blck.Headers["IV"]); err != nil {
		return h, fmt.Errorf("bad IV %q: %w", blck.Headers["IV"], err)
	}
	return h, nil
}

// decryptPayload undoes encryptPayload and strips the padding.
func decryptPayload(ecm cryptors.Crypter, encText []byte, h fileHeader) ([]byte, error) {
	bs := ecm.BlockSize()
	if len(encText) == 0 || len(encText)%bs != 0 {
		return nil, fmt.Errorf("ciphertext is %d bytes, not a multiple of the %d byte block", len(encText), bs)
	}
	out := make([]byte, len(encText))

	switch h.mode {
	case modeECB:
		if err := cryptors.ProcessBlocks(logContext(), ecm, out, encText, workers, true); err != nil {
			return nil, err
		}
	case modeCBC:
		if len(h.iv) != bs {
			return nil, fmt.Errorf("IV is %d bytes, block is %d", len(h.iv), bs)
		}
		cipher.NewCBCDecrypter(ecm, h.iv).CryptBlocks(out, encText)
	default:
		return nil, fmt.Errorf("unknown mode %q", h.mode)
	}
	return cryptors.Unpad(out, bs)
}

func decrypt(args []string) {
	network := newNetwork(getSecret(args))
	fin, fout := getInputAndOutputFiles(false)
	defer func() { fout.Close() }()

	var h fileHeader
	var aRdr *io.PipeReader
	bRdr := bufio.NewReader(fin)
	b, err := bRdr.Peek(5)
	checkError(err)
	if string(b) == "-----" {
		var blck pem.Block
		aRdr, blck = pem.FromPem(bRdr)
		h, err = pemHeader(blck)
		checkError(err)
	} else {
		line, err := bRdr.ReadString('\n')
		checkError(err)
		h, err = parseHeaderLine(line)
		checkError(err)
		if h.ascii85 {
			aRdr = ascii85.FromASCII85(lines.CombineLines(bRdr))
		} else {
			aRdr = fromBinaryHelper(bRdr)
		}
	}

	if h.apiLevel != feistelApiLevel {
		fmt.Fprintf(os.Stderr, "Error: API Level mismatch. FileApiLevel: %d, FeistelApiLevel: %d\n", h.apiLevel, feistelApiLevel)
		os.Exit(100)
	}
	if len(outputFileName) == 0 && len(h.fileName) > 0 {
		fout, err = os.Create(h.fileName)
		checkError(err)
	}
	logger.Debug().Str("mode", h.mode).Bool("compressed", h.compression).Str("file", h.fileName).Msg("header read")

	encText, err := io.ReadAll(aRdr)
	checkError(err)
	plain, err := decryptPayload(network, encText, h)
	checkError(err)

	if h.compression {
		_, err = io.Copy(fout, flate.FromFlate(bytesHelper(plain)))
	} else {
		_, err = fout.Write(plain)
	}
	checkError(err)
	wg.Wait() // Wait for the helpers to finish their clean up.
}
