package model

import (
	"regexp"
	"strings"
)

// TestCase is one (stdin -> expected pattern) pair within a problem.
type TestCase struct {
	Stdin            string `json:"stdin"`
	ExpectedPattern  string `json:"expected_pattern"`
	UseRegex         bool   `json:"use_regex"`
	CaseInsensitive  bool   `json:"case_insensitive"`
}

// Validate compiles the regex (if UseRegex is set) purely to reject bad
// patterns early; the compiled regexp itself is not cached on the value
// since TestCase is meant to stay a plain serializable struct.
func (c TestCase) Validate() error {
	if c.UseRegex {
		_, err := regexp.Compile(c.ExpectedPattern)
		return err
	}
	return nil
}

// CheckOutput compares a program's stdout against the expected pattern.
// Trailing whitespace is trimmed from both sides before comparison, so the
// verdict is invariant under trailing-whitespace-only changes to either
// side (a round-trip/idempotence property).
func (c TestCase) CheckOutput(output string) (bool, error) {
	got := strings.TrimRight(output, " \t\r\n")
	want := strings.TrimRight(c.ExpectedPattern, " \t\r\n")

	if !c.UseRegex {
		if c.CaseInsensitive {
			return strings.EqualFold(got, want), nil
		}
		return got == want, nil
	}

	pattern := want
	if c.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(got), nil
}
