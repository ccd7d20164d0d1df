// Package gapseq defines Shellsort gap sequences together with the
// validator and repair pass that guard every sequence entering a search.
package gapseq

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Sequence holds gaps in ascending order; Shellsort applies them descending.
type Sequence []int

// Named pairs a sequence with a display name such as "Ciura".
type Named struct {
	Name string   `json:"name"`
	Gaps Sequence `json:"gaps"`
}

var ErrParse = errors.New("parse gap sequence")

func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

func (s Sequence) Equal(other Sequence) bool {
	return slices.Equal(s, other)
}

// Key returns a canonical form suitable for map keys.
func (s Sequence) Key() string {
	var b strings.Builder
	for i, g := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(g))
	}
	return b.String()
}

func (s Sequence) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, g := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(g))
	}
	b.WriteByte(']')
	return b.String()
}

// Max returns the largest gap, or 0 for an empty sequence.
func (s Sequence) Max() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// Trim returns the prefix of gaps strictly below n.
func (s Sequence) Trim(n int) Sequence {
	end := len(s)
	for end > 0 && s[end-1] >= n {
		end--
	}
	return s[:end].Clone()
}

// Parse reads "1,4,10" or "[1, 4, 10]". It does not validate the result.
func Parse(text string) (Sequence, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if strings.TrimSpace(trimmed) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}
	parts := strings.Split(trimmed, ",")
	out := make(Sequence, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrParse, part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
