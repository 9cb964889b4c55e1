package anpr

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DefaultPlatePatterns are the letter/digit layouts accepted by default.
// They can be overridden per deployment region through configuration.
var DefaultPlatePatterns = []string{
	`^[A-Z]{1,3}[0-9]{1,4}[A-Z]{0,3}$`, // AB1234, ABC123D
	`^[0-9]{1,3}[A-Z]{1,3}[0-9]{1,4}$`, // 12AB345
	`^[A-Z0-9]{4,8}$`,                  // general alphanumeric
}

// nonAlnum matches every character stripped during normalization.
var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// Validator normalizes recognized text and filters it against the plate
// format policy and confidence threshold. Rejection is the expected outcome
// for most frames, not an error.
type Validator struct {
	minConfidence float64
	minLength     int
	maxLength     int
	patterns      []*regexp.Regexp
}

// ValidatorConfig holds the plate-format policy.
type ValidatorConfig struct {
	MinConfidence float64  // accept at or above this value
	MinLength     int      // normalized length lower bound (default 4)
	MaxLength     int      // normalized length upper bound (default 10)
	Patterns      []string // anchored uppercase-alphanumeric regexps
}

// NewValidator compiles the format policy. An invalid pattern is a
// configuration bug and reported immediately.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.MinLength == 0 {
		cfg.MinLength = 4
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 10
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPlatePatterns
	}
	v := &Validator{
		minConfidence: cfg.MinConfidence,
		minLength:     cfg.MinLength,
		maxLength:     cfg.MaxLength,
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid plate pattern %q: %w", p, err)
		}
		v.patterns = append(v.patterns, re)
	}
	return v, nil
}

// NormalizePlate uppercases text, strips whitespace and punctuation, and
// corrects the common OCR confusions O/0 and I/1. A correction is applied
// only when the confused character is a minority of the string, so plates
// that legitimately lean on a letter are left alone.
func NormalizePlate(raw string) string {
	cleaned := nonAlnum.ReplaceAllString(strings.ToUpper(raw), "")
	for old, repl := range map[string]string{"O": "0", "I": "1"} {
		if strings.Count(cleaned, old) < len(cleaned)/2 {
			cleaned = strings.ReplaceAll(cleaned, old, repl)
		}
	}
	return cleaned
}

// Validate turns a recognition result into a ValidatedPlate. The second
// return is false when the result is rejected: confidence strictly below the
// threshold, normalized length outside bounds, or text failing the format
// policy. Confidence exactly at the threshold is accepted.
func (v *Validator) Validate(result RecognitionResult) (ValidatedPlate, bool) {
	if result.Confidence < v.minConfidence {
		return ValidatedPlate{}, false
	}
	text := NormalizePlate(result.RawText)
	if len(text) < v.minLength || len(text) > v.maxLength {
		return ValidatedPlate{}, false
	}
	if !hasLetterAndDigit(text) {
		return ValidatedPlate{}, false
	}
	matched := false
	for _, re := range v.patterns {
		if re.MatchString(text) {
			matched = true
			break
		}
	}
	if !matched {
		return ValidatedPlate{}, false
	}
	return ValidatedPlate{
		NormalizedText: text,
		Confidence:     result.Confidence,
		Timestamp:      time.Now(),
	}, true
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		if unicode.IsLetter(r) {
			letter = true
		}
		if unicode.IsDigit(r) {
			digit = true
		}
	}
	return letter && digit
}
