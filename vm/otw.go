package vm

import (
	"strings"

	"github.com/suisim/sandbox/resolver"
)

// IsOneTimeWitness reports whether structName in moduleID is a valid
// one-time witness: a single bool field, named the upper-case form of
// its module's short name (spec.md §4.5, E6).
func IsOneTimeWitness(res *resolver.Resolver, moduleID resolver.ModuleID, structName string) bool {
	s, err := res.GetStruct(moduleID, structName)
	if err != nil {
		return false
	}
	if !s.IsCandidateOTW() {
		return false
	}
	return structName == strings.ToUpper(moduleID.Name)
}
