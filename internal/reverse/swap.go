package reverse

import (
	"strings"

	"github.com/wegman-software/osmlr-go/internal/attrs"
)

// Pair is two direction tokens that replace each other when reversing
type Pair struct {
	A, B string
}

// DefaultPairs covers the OSM :forward/:backward convention and short forms
var DefaultPairs = []Pair{
	{"forward", "backward"},
	{"fwd", "bwd"},
}

// SwapDirections returns a transform that flips direction tokens.
// A key whose last ':'-separated component is a token gets the opposite
// token (maxspeed:forward -> maxspeed:backward); a value equal to a token
// is replaced the same way. Without pairs, DefaultPairs is used.
func SwapDirections(pairs ...Pair) attrs.Transform {
	if len(pairs) == 0 {
		pairs = DefaultPairs
	}
	opposite := make(map[string]string, 2*len(pairs))
	for _, p := range pairs {
		opposite[p.A] = p.B
		opposite[p.B] = p.A
	}

	return func(in attrs.Set) attrs.Set {
		out := make(attrs.Set, 0, in.Len())
		for _, t := range in {
			out.AddOrReplace(swapKey(t.Key, opposite), swapToken(t.Value, opposite))
		}
		return out
	}
}

func swapKey(key string, opposite map[string]string) string {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return key
	}
	if o, ok := opposite[key[i+1:]]; ok {
		return key[:i+1] + o
	}
	return key
}

func swapToken(v string, opposite map[string]string) string {
	if o, ok := opposite[v]; ok {
		return o
	}
	return v
}
