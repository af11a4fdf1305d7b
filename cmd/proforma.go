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

	"github.com/bgallie/feistel/cryptors/feistel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// proformaCmd represents the proforma command
var proformaCmd = &cobra.Command{
	Use:   "proforma",
	Short: "Write out the table set",
	Long: `Write the table set in use (the builtin proforma tables unless --tables is
given) to the file named by -o, formatted by its extension (eg. tables.yaml).
Without -o the tables are printed as Go literals.`,
	Run: func(cmd *cobra.Command, args []string) {
		writeProforma()
	},
}

func init() {
	rootCmd.AddCommand(proformaCmd)
}

// tablesToViper copies every field of cfg under its configuration key.
func tablesToViper(cfg *feistel.Config) *viper.Viper {
	v := viper.New()
	v.Set("block_bits", cfg.BlockBits)
	v.Set("key_bits", cfg.KeyBits)
	v.Set("initial_permutation", cfg.InitialPermutation)
	if len(cfg.FinalPermutation) > 0 {
		v.Set("final_permutation", cfg.FinalPermutation)
	}
	v.Set("expansion", cfg.Expansion)
	v.Set("sbox_in", cfg.SBoxIn)
	v.Set("sbox_out", cfg.SBoxOut)
	v.Set("sboxes", cfg.SBoxes)
	v.Set("round_permutation", cfg.RoundPermutation)
	v.Set("key_left", cfg.KeyLeft)
	v.Set("key_right", cfg.KeyRight)
	v.Set("key_compression", cfg.KeyCompression)
	v.Set("shifts", cfg.Shifts)
	v.Set("word_aligned", cfg.WordAligned)
	return v
}

func writeProforma() {
	cfg := loadTables()
	tables, err := cfg.Compile()
	cobra.CheckErr(err)

	if len(outputFileName) > 0 && outputFileName != "-" {
		cobra.CheckErr(tablesToViper(cfg).WriteConfigAs(outputFileName))
		logger.Info().Str("file", outputFileName).Msg("tables written")
		return
	}

	fmt.Printf("// %d bit block, %d bit key, %d rounds\n", tables.BlockBits(), tables.KeyBits(), tables.Rounds())
	for _, t := range tables.Permutations() {
		fmt.Println(t)
	}
	box := tables.SBox()
	fmt.Printf("\t// %d substitution tables, %d -> %d bits\n", box.NumTables(), box.InSize(), box.OutSize())
	fmt.Printf("\tshifts\t%v\n", cfg.Shifts)
}
