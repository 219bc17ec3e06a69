package reverse

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/logger"
)

// Script runs a Lua reversal function. The script must define a global
//
//	function reverse(tags) ... return tags end
//
// receiving the attributes as a table of strings and returning the reversed
// table. Returned keys are sorted; nil or non-string values drop the key.
type Script struct {
	L       *lua.LState
	reverse lua.LValue
	mu      sync.Mutex
}

// NewScript loads reversal code from a string
func NewScript(code string) (*Script, error) {
	s := newScript()
	if err := s.L.DoString(code); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load Lua code: %w", err)
	}
	if err := s.extractCallback(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// LoadScript loads reversal code from a file
func LoadScript(path string) (*Script, error) {
	s := newScript()
	if err := s.L.DoFile(path); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load Lua file: %w", err)
	}
	if err := s.extractCallback(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newScript() *Script {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	s := &Script{L: L}
	s.registerAPI()
	return s
}

// registerAPI exposes a small osmlr helper module to scripts
func (s *Script) registerAPI() {
	osmlr := s.L.NewTable()
	osmlr.RawSetString("version", lua.LString("1.0.0"))
	s.L.SetField(osmlr, "swap_suffix", s.L.NewFunction(luaSwapSuffix))
	s.L.SetField(osmlr, "has_suffix", s.L.NewFunction(luaHasSuffix))
	s.L.SetGlobal("osmlr", osmlr)

	s.L.SetGlobal("print", s.L.NewFunction(luaPrint))
}

func (s *Script) extractCallback() error {
	fn := s.L.GetGlobal("reverse")
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("Lua script must define a global function 'reverse'")
	}
	s.reverse = fn
	return nil
}

// Close releases Lua resources
func (s *Script) Close() {
	s.L.Close()
}

// Reverse calls the script's reverse function
func (s *Script) Reverse(in attrs.Set) (attrs.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.L.NewTable()
	for _, t := range in {
		tbl.RawSetString(t.Key, lua.LString(t.Value))
	}

	if err := s.L.CallByParam(lua.P{
		Fn:      s.reverse,
		NRet:    1,
		Protect: true,
	}, tbl); err != nil {
		return nil, fmt.Errorf("lua reverse error: %w", err)
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)

	result, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua reverse must return a table, got %s", ret.Type())
	}

	m := make(map[string]string)
	result.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		switch val := v.(type) {
		case lua.LString:
			m[string(key)] = string(val)
		case lua.LNumber:
			m[string(key)] = val.String()
		case lua.LBool:
			m[string(key)] = val.String()
		}
	})
	return attrs.FromMap(m), nil
}

// Transform adapts the script to attrs.Transform. A failing script leaves
// the attributes unchanged and logs the error.
func (s *Script) Transform() attrs.Transform {
	return func(in attrs.Set) attrs.Set {
		out, err := s.Reverse(in)
		if err != nil {
			logger.Get().Warn("Lua reverse failed, applying attributes unchanged",
				zap.Error(err), zap.Stringer("attributes", in))
			return in
		}
		return out
	}
}

// luaSwapSuffix implements osmlr.swap_suffix(key, a, b)
func luaSwapSuffix(L *lua.LState) int {
	key := L.CheckString(1)
	a := L.CheckString(2)
	b := L.CheckString(3)
	L.Push(lua.LString(swapKey(key, map[string]string{a: b, b: a})))
	return 1
}

// luaHasSuffix implements osmlr.has_suffix(key, suffix)
func luaHasSuffix(L *lua.LState) int {
	key := L.CheckString(1)
	suffix := L.CheckString(2)
	L.Push(lua.LBool(strings.HasSuffix(key, ":"+suffix)))
	return 1
}

// luaPrint routes print output to the debug log
func luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	logger.Get().Debug("lua", zap.String("message", strings.Join(parts, "\t")))
	return 0
}
