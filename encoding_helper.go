package jinx

import (
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/vecf32"
)

// EncodeOneHot encodes every rune of every text as a one-hot vector over the dictionary of the
// runes used. The dictionary lists runes in order of first appearance.
func EncodeOneHot(texts ...string) (encoded [][][]float32, dict []rune) {
	index := make(map[rune]int)
	for _, t := range texts {
		for _, r := range t {
			if _, ok := index[r]; !ok {
				index[r] = len(dict)
				dict = append(dict, r)
			}
		}
	}

	encoded = make([][][]float32, len(texts))
	for i, t := range texts {
		for _, r := range t {
			v := make([]float32, len(dict))
			v[index[r]] = 1
			encoded[i] = append(encoded[i], v)
		}
	}
	return encoded, dict
}

// DecodeOneHot maps every vector of seq to the dictionary rune of its largest element.
func DecodeOneHot(seq [][]float32, dict []rune) (string, error) {
	var buf strings.Builder
	for i, v := range seq {
		if len(v) != len(dict) {
			return buf.String(), errors.Errorf("vector %d has %d elements, dictionary has %d runes", i, len(v), len(dict))
		}
		buf.WriteRune(dict[vecf32.Argmax(v)])
	}
	return buf.String(), nil
}
