package gapseq

import "fmt"

// Reason classifies why a sequence failed validation.
type Reason string

const (
	ReasonEmpty         Reason = "empty"
	ReasonFirstGap      Reason = "first_gap"
	ReasonNonPositive   Reason = "non_positive"
	ReasonNotIncreasing Reason = "not_increasing"
	ReasonTooShort      Reason = "too_short"
	ReasonTooLong       Reason = "too_long"
	ReasonGapTooLarge   Reason = "gap_too_large"
)

// ValidationError describes the first rule a sequence violates.
type ValidationError struct {
	Reason Reason
	Index  int
	Detail string
}

func (e *ValidationError) Error() string {
	return "invalid gap sequence: " + e.Detail
}

// Limits bounds sequence length and, optionally, the largest gap.
type Limits struct {
	MinLen int
	MaxLen int
	MaxGap int
}

// DefaultLimits matches the practical range seen in evolved sequences.
func DefaultLimits() Limits {
	return Limits{MinLen: 8, MaxLen: 25}
}

// Validate checks the structural rules every gap sequence must satisfy:
// non-empty, first gap 1, all gaps positive and strictly increasing.
func Validate(seq Sequence) error {
	if len(seq) == 0 {
		return &ValidationError{Reason: ReasonEmpty, Detail: "empty sequence"}
	}
	if seq[0] != 1 {
		return &ValidationError{
			Reason: ReasonFirstGap,
			Detail: fmt.Sprintf("first gap must be 1, got %d", seq[0]),
		}
	}
	for i, g := range seq {
		if g <= 0 {
			return &ValidationError{
				Reason: ReasonNonPositive,
				Index:  i,
				Detail: fmt.Sprintf("gap %d is not positive (got %d)", i, g),
			}
		}
		if i > 0 && g <= seq[i-1] {
			return &ValidationError{
				Reason: ReasonNotIncreasing,
				Index:  i,
				Detail: fmt.Sprintf("not strictly increasing: gaps[%d]=%d <= gaps[%d]=%d", i, g, i-1, seq[i-1]),
			}
		}
	}
	return nil
}

// ValidateWithin applies Validate and then the length and max-gap limits.
// Zero-valued limits are not enforced.
func ValidateWithin(seq Sequence, limits Limits) error {
	if err := Validate(seq); err != nil {
		return err
	}
	if limits.MinLen > 0 && len(seq) < limits.MinLen {
		return &ValidationError{
			Reason: ReasonTooShort,
			Index:  len(seq),
			Detail: fmt.Sprintf("length %d below minimum %d", len(seq), limits.MinLen),
		}
	}
	if limits.MaxLen > 0 && len(seq) > limits.MaxLen {
		return &ValidationError{
			Reason: ReasonTooLong,
			Index:  limits.MaxLen,
			Detail: fmt.Sprintf("length %d above maximum %d", len(seq), limits.MaxLen),
		}
	}
	if limits.MaxGap > 0 && seq.Max() > limits.MaxGap {
		return &ValidationError{
			Reason: ReasonGapTooLarge,
			Index:  len(seq) - 1,
			Detail: fmt.Sprintf("gap %d exceeds maximum %d", seq.Max(), limits.MaxGap),
		}
	}
	return nil
}
