package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	labPrefixRe = regexp.MustCompile(`(?i)^\s*(?:computer\s+laboratory|comlab|lab(?:oratory)?)\s*[-#:.]?\s*`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// LabNumber extracts the lab identifier from free text such as "Lab 3",
// "Comlab 3", "COMLAB3" or "Computer Laboratory 10".
func LabNumber(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "#", " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))

	// Prefix only; "Lab Number" stays as it is so header rows remain recognisable.
	if loc := labPrefixRe.FindStringIndex(s); loc != nil && !strings.EqualFold(s, "lab number") {
		s = strings.TrimSpace(s[loc[1]:])
	}

	if s == "" {
		return "", fmt.Errorf("unable to parse lab number from %q", raw)
	}
	return s, nil
}

// CompareLabNumbers orders lab numbers numerically when both are integers.
// Integers sort before anything else; the rest compare lexicographically.
func CompareLabNumbers(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
