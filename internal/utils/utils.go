package utils

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// F64ToS converts float to string using the maximum accuracy
func F64ToS(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MinI computes the min value between two integers
func MinI(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MaxI computes the max value between two integers
func MaxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ClampF returns v bounded to [lo, hi]
func ClampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FindRegexGroups returns a map containing the group names as keys and the values matched as values, if the string value matches the regex.
func FindRegexGroups(reg *regexp.Regexp, v string) (map[string]string, error) {
	matches := reg.FindStringSubmatch(v)
	if len(matches) == 0 {
		return nil, fmt.Errorf("failed to find submatch in regex %v for value %v", reg.String(), v)
	}

	groupNames := reg.SubexpNames()
	res := make(map[string]string, len(matches)-1)
	for i := 1; i < len(matches); i++ {
		res[groupNames[i]] = matches[i]
	}
	return res, nil
}

// StringSet is a set of strings
type StringSet map[string]struct{}

// NewStringSet creates a set from a list of strings
func NewStringSet(ss ...string) StringSet {
	set := StringSet{}
	for _, s := range ss {
		set.Push(s)
	}
	return set
}

// Push adds s to the set
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Exists returns true if s is in the set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

// URLJoin joins a base url (or path) with path elements
func URLJoin(url string, elems ...string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(url, "/"), path.Join(elems...))
}
