package manifest

import (
	"strings"

	"github.com/chazu/corvid/bytecode"
	"github.com/chazu/corvid/compiler"
)

// ValidAlias reports whether name can be a tool alias in source: an
// identifier that is neither a keyword nor an intrinsic name.
func ValidAlias(name string) bool {
	if !isIdent(name) {
		return false
	}
	if _, ok := compiler.Keywords[name]; ok {
		return false
	}
	_, ok := bytecode.LookupIntrinsic(name)
	return !ok
}

// ValidCapabilityID reports whether id is a dotted capability id such as
// "web.search". Only the lowercase segments are checked; a version
// suffix is not part of an id.
func ValidCapabilityID(id string) bool {
	if id == "" {
		return false
	}
	for _, seg := range strings.Split(id, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
				return false
			}
		}
	}
	return true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		if !letter && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}
