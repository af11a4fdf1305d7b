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
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bgallie/feistel/cryptors/bitops"
	"github.com/bgallie/feistel/cryptors/feistel"
	"github.com/bgallie/feistel/cryptors/proforma"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	cfgFile        string
	tablesFileName string
	inputFileName  string
	outputFileName string
	hexKey         bool
	verbose        bool
	workers        int
	logger         = zerolog.Nop()
	wg             sync.WaitGroup
	GitCommit      string = "not set"
	GitBranch      string = "not set"
	GitState       string = "not set"
	GitSummary     string = "not set"
	BuildDate      string = "not set"
	Version        string = "dev"
)

const (
	feistelConfigName = ".feistel"
	feistelSuffix     = ".fnet"
	feistelApiLevel   = 1
	secretEnv         = "FEISTEL_SECRET"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "feistel",
	Short:   "A table driven Feistel network",
	Long:    `feistel encrypts/decrypts files with a Feistel network whose permutation, substitution and key schedule tables are configuration.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initLogger, initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.feistel.yaml)")
	rootCmd.PersistentFlags().StringVarP(&tablesFileName, "tables", "t", "", "the file name containing the table set to use instead of the builtin proforma tables.")
	rootCmd.PersistentFlags().StringVarP(&inputFileName, "inputFile", "i", "-", "Name of the plaintext file to encrypt/decrypt.")
	rootCmd.PersistentFlags().StringVarP(&outputFileName, "outputFile", "o", "", "Name of the file containing the encrypted/decrypted plaintext.")
	rootCmd.PersistentFlags().BoolVarP(&hexKey, "hex", "x", false, "the secret key is given in hexadecimal.")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "number of goroutines processing independent blocks (0 uses every CPU).")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages.")
}

// initLogger sets up the console logger on stderr.
func initLogger() {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".feistel" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(feistelConfigName)
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logger.Debug().Str("file", viper.ConfigFileUsed()).Msg("using config file")
	}
}

// logContext returns a context carrying the command logger.
func logContext() context.Context {
	return logger.WithContext(context.Background())
}

// loadTables returns the table set named by --tables, the "tables" section
// of the config file, or the builtin proforma tables, in that order.
func loadTables() *feistel.Config {
	var cfg feistel.Config
	switch {
	case tablesFileName != "":
		v := viper.New()
		v.SetConfigFile(tablesFileName)
		cobra.CheckErr(v.ReadInConfig())
		cobra.CheckErr(v.Unmarshal(&cfg))
		logger.Debug().Str("file", tablesFileName).Msg("using table file")
	case viper.IsSet("tables"):
		cobra.CheckErr(viper.UnmarshalKey("tables", &cfg))
		logger.Debug().Str("file", viper.ConfigFileUsed()).Msg("using tables from config file")
	default:
		return proforma.Demo()
	}
	return &cfg
}

// getSecret obtains the key used to encrypt the file from either:
//  1. Arguments from the entered command line (least secure - not recommended)
//  2. The 'FEISTEL_SECRET' environment variable (less secure)
//  3. User input from the terminal (most secure)
func getSecret(args []string) []byte {
	var secret string
	if len(args) == 0 {
		if viper.IsSet(secretEnv) {
			secret = viper.GetString(secretEnv)
		} else {
			if term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Fprintf(os.Stderr, "Enter the passphrase: ")
				byteSecret, err := term.ReadPassword(int(os.Stdin.Fd()))
				cobra.CheckErr(err)
				fmt.Fprintln(os.Stderr, "")
				secret = string(byteSecret)
			}
		}
	} else {
		secret = strings.Join(args, " ")
	}

	if len(secret) == 0 {
		cobra.CheckErr("You must supply a password.")
	}
	return decodeKey(secret)
}

// decodeKey turns the secret into key bytes, decoding hex when --hex is set.
func decodeKey(secret string) []byte {
	if !hexKey {
		return []byte(secret)
	}
	key, err := hex.DecodeString(secret)
	cobra.CheckErr(err)
	return key
}

// newNetwork builds the network for the selected tables and key.  Buffers
// the size of one block are recycled through a pool.
func newNetwork(key []byte) *feistel.Network {
	cfg := loadTables()
	tables, err := cfg.Compile()
	cobra.CheckErr(err)

	pool := bitops.NewPoolAllocator(bitops.Capacity(tables.BlockBits(), tables.Granularity()))
	network, err := feistel.NewFromTables(tables, key, feistel.WithAllocator(pool))
	cobra.CheckErr(err)

	logger.Debug().
		Int("blockBits", tables.BlockBits()).
		Int("keyBits", tables.KeyBits()).
		Int("rounds", tables.Rounds()).
		Stringer("granularity", tables.Granularity()).
		Msg("network scheduled")
	return network
}

/*
getInputAndOutputFiles will return the input and output files to use while
encrypting/decrypting data.  If input and/or output files names were given,
then those files will be opened.  Otherwise stdin and stdout are used.
*/
func getInputAndOutputFiles(encode bool) (*os.File, *os.File) {
	var fin *os.File
	var err error

	if len(inputFileName) > 0 {
		if inputFileName == "-" {
			fin = os.Stdin
		} else {
			fin, err = os.Open(inputFileName)
			cobra.CheckErr(err)
		}
	} else {
		fin = os.Stdin
	}

	var fout *os.File

	if len(outputFileName) > 0 {
		if outputFileName == "-" {
			fout = os.Stdout
		} else {
			fout, err = os.Create(outputFileName)
			cobra.CheckErr(err)
		}
	} else if inputFileName == "-" {
		fout = os.Stdout
	} else if encode {
		outputFileName = inputFileName + feistelSuffix
		fout, err = os.Create(outputFileName)
		cobra.CheckErr(err)
	} else {
		if strings.HasSuffix(inputFileName, feistelSuffix) {
			outputFileName = strings.TrimSuffix(inputFileName, feistelSuffix)
			fout, err = os.Create(outputFileName)
			cobra.CheckErr(err)
		} else {
			fout = os.Stdout
		}
	}
	logger.Debug().Str("input", inputFileName).Str("output", outputFileName).Msg("files selected")
	return fin, fout
}

// bytesHelper feeds buf into a pipe so it can be handed to the filters,
// which all consume pipe readers.
func bytesHelper(buf []byte) *io.PipeReader {
	rRdr, rWrtr := io.Pipe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := rWrtr.Write(buf)
		rWrtr.CloseWithError(err)
	}()
	return rRdr
}

// checkError checks for error that are not io.EOF and io.ErrUnexpectedEOF and logs them.
func checkError(e error) {
	if e != nil && e != io.EOF && e != io.ErrUnexpectedEOF {
		logger.Error().Err(e).Msg("fatal")
		cobra.CheckErr(e)
	}
}
