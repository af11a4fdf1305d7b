// Package proforma holds the built-in table set used when no table file is
// given: a 64-bit block, 16 round network with eight 6->4 substitution
// tables and a 64-bit key split into two 28-bit halves.
package proforma

import "github.com/bgallie/feistel/cryptors/feistel"

var (
	initialPermutation = []int{
		57, 49, 41, 33, 25, 17, 9, 1, 59, 51, 43, 35, 27, 19, 11, 3,
		61, 53, 45, 37, 29, 21, 13, 5, 63, 55, 47, 39, 31, 23, 15, 7,
		56, 48, 40, 32, 24, 16, 8, 0, 58, 50, 42, 34, 26, 18, 10, 2,
		60, 52, 44, 36, 28, 20, 12, 4, 62, 54, 46, 38, 30, 22, 14, 6,
	}

	finalPermutation = []int{
		39, 7, 47, 15, 55, 23, 63, 31, 38, 6, 46, 14, 54, 22, 62, 30,
		37, 5, 45, 13, 53, 21, 61, 29, 36, 4, 44, 12, 52, 20, 60, 28,
		35, 3, 43, 11, 51, 19, 59, 27, 34, 2, 42, 10, 50, 18, 58, 26,
		33, 1, 41, 9, 49, 17, 57, 25, 32, 0, 40, 8, 48, 16, 56, 24,
	}

	expansion = []int{
		31, 0, 1, 2, 3, 4,
		3, 4, 5, 6, 7, 8,
		7, 8, 9, 10, 11, 12,
		11, 12, 13, 14, 15, 16,
		15, 16, 17, 18, 19, 20,
		19, 20, 21, 22, 23, 24,
		23, 24, 25, 26, 27, 28,
		27, 28, 29, 30, 31, 0,
	}

	roundPermutation = []int{
		15, 6, 19, 20,
		28, 11, 27, 16,
		0, 14, 22, 25,
		4, 17, 30, 9,
		1, 7, 23, 13,
		31, 26, 2, 8,
		18, 12, 29, 5,
		21, 10, 3, 24,
	}

	// Each table is indexed directly by the 6-bit group value.
	sboxes = [][]int{
		{
			14, 0, 4, 15, 13, 7, 1, 4, 2, 14, 15, 2, 11, 13, 8, 1,
			3, 10, 10, 6, 6, 12, 12, 11, 5, 9, 9, 5, 0, 3, 7, 8,
			4, 15, 1, 12, 14, 8, 8, 2, 13, 4, 6, 9, 2, 1, 11, 7,
			15, 5, 12, 11, 9, 3, 7, 14, 3, 10, 10, 0, 5, 6, 0, 13,
		},
		{
			15, 3, 1, 13, 8, 4, 14, 7, 6, 15, 11, 2, 3, 8, 4, 14,
			9, 12, 7, 0, 2, 1, 13, 10, 12, 6, 0, 9, 5, 11, 10, 5,
			0, 13, 14, 8, 7, 10, 11, 1, 10, 3, 4, 15, 13, 4, 1, 2,
			5, 11, 8, 6, 12, 7, 6, 12, 9, 0, 3, 5, 2, 14, 15, 9,
		},
		{
			10, 13, 0, 7, 9, 0, 14, 9, 6, 3, 3, 4, 15, 6, 5, 10,
			1, 2, 13, 8, 12, 5, 7, 14, 11, 12, 4, 11, 2, 15, 8, 1,
			13, 1, 6, 10, 4, 13, 9, 0, 8, 6, 15, 9, 3, 8, 0, 7,
			11, 4, 1, 15, 2, 14, 12, 3, 5, 11, 10, 5, 14, 2, 7, 12,
		},
		{
			7, 13, 13, 8, 14, 11, 3, 5, 0, 6, 6, 15, 9, 0, 10, 3,
			1, 4, 2, 7, 8, 2, 5, 12, 11, 1, 12, 10, 4, 14, 15, 9,
			10, 3, 6, 15, 9, 0, 0, 6, 12, 10, 11, 1, 7, 13, 13, 8,
			15, 9, 1, 4, 3, 5, 14, 11, 5, 12, 2, 7, 8, 2, 4, 14,
		},
		{
			2, 14, 12, 11, 4, 2, 1, 12, 7, 4, 10, 7, 11, 13, 6, 1,
			8, 5, 5, 0, 3, 15, 15, 10, 13, 3, 0, 9, 14, 8, 9, 6,
			4, 11, 2, 8, 1, 12, 11, 7, 10, 1, 13, 14, 7, 2, 8, 13,
			15, 6, 9, 15, 12, 0, 5, 9, 6, 10, 3, 4, 0, 5, 14, 3,
		},
		{
			12, 10, 1, 15, 10, 4, 15, 2, 9, 7, 2, 12, 6, 9, 8, 5,
			0, 6, 13, 1, 3, 13, 4, 14, 14, 0, 7, 11, 5, 3, 11, 8,
			9, 4, 14, 3, 15, 2, 5, 12, 2, 9, 8, 5, 12, 15, 3, 10,
			7, 11, 0, 14, 4, 1, 10, 7, 1, 6, 13, 0, 11, 8, 6, 13,
		},
		{
			4, 13, 11, 0, 2, 11, 14, 7, 15, 4, 0, 9, 8, 1, 13, 10,
			3, 14, 12, 3, 9, 5, 7, 12, 5, 2, 10, 15, 6, 8, 1, 6,
			1, 6, 4, 11, 11, 13, 13, 8, 12, 1, 3, 4, 7, 10, 14, 7,
			10, 9, 15, 5, 6, 0, 8, 15, 0, 14, 5, 2, 9, 3, 2, 12,
		},
		{
			13, 1, 2, 15, 8, 13, 4, 8, 6, 10, 15, 3, 11, 7, 1, 4,
			10, 12, 9, 5, 3, 6, 14, 11, 5, 0, 0, 14, 12, 9, 7, 2,
			7, 2, 11, 1, 4, 14, 1, 7, 9, 4, 12, 10, 14, 8, 2, 13,
			0, 15, 6, 12, 10, 9, 13, 0, 15, 3, 3, 5, 5, 6, 8, 11,
		},
	}

	keyLeft = []int{
		56, 48, 40, 32, 24, 16, 8, 0, 57, 49, 41, 33, 25, 17,
		9, 1, 58, 50, 42, 34, 26, 18, 10, 2, 59, 51, 43, 35,
	}

	// Entry 9 is 55 where the DES key split has 53.  Both are kept from the
	// demonstration driver these tables come from, so the demo schedule only
	// matches DES for keys whose bits 53 and 55 agree.
	keyRight = []int{
		62, 54, 46, 38, 30, 22, 14, 6, 61, 55, 45, 37, 29, 21,
		13, 5, 60, 52, 44, 36, 28, 20, 12, 4, 27, 19, 11, 3,
	}

	keyCompression = []int{
		13, 16, 10, 23, 0, 4, 2, 27, 14, 5, 20, 9, 22, 18, 11, 3,
		25, 7, 15, 6, 26, 19, 12, 1, 40, 51, 30, 36, 46, 54, 29, 39,
		50, 44, 32, 47, 43, 48, 38, 55, 33, 52, 45, 41, 49, 35, 28, 31,
	}

	shifts = []int{1, 1, 2, 2, 2, 2, 2, 2, 1, 2, 2, 2, 2, 2, 2, 1}
)

// Demo returns a fresh copy of the built-in table set.  Callers may modify
// the result freely.
func Demo() *feistel.Config {
	return &feistel.Config{
		BlockBits:          64,
		KeyBits:            64,
		InitialPermutation: clone(initialPermutation),
		FinalPermutation:   clone(finalPermutation),
		Expansion:          clone(expansion),
		SBoxIn:             6,
		SBoxOut:            4,
		SBoxes:             cloneTables(sboxes),
		RoundPermutation:   clone(roundPermutation),
		KeyLeft:            clone(keyLeft),
		KeyRight:           clone(keyRight),
		KeyCompression:     clone(keyCompression),
		Shifts:             clone(shifts),
		WordAligned:        true,
	}
}

func clone(s []int) []int {
	return append([]int(nil), s...)
}

func cloneTables(t [][]int) [][]int {
	out := make([][]int, len(t))
	for i := range t {
		out[i] = clone(t[i])
	}
	return out
}
