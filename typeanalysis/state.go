package typeanalysis

import "github.com/speakeasy-api/blockjit"

// typeState holds the type of every tracked variable at one program point,
// indexed by the variable's slot. The zero value of each slot is Unknown.
type typeState []blockjit.StaticType

func (s typeState) clone() typeState {
	out := make(typeState, len(s))
	copy(out, s)
	return out
}

// join returns the slot-wise union of s and o.
func (s typeState) join(o typeState) typeState {
	out := make(typeState, len(s))
	for i := range s {
		out[i] = blockjit.Union(s[i], o[i])
	}
	return out
}

func (s typeState) equal(o typeState) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
