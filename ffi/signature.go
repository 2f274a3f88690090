package ffi

import (
	"fmt"
	"strings"

	"github.com/chazu/spur/marshal"
)

// Signature is the compiled shape of a native function.
type Signature struct {
	Args   []marshal.Type
	Return marshal.Type
}

// Validate rejects unknown types and void parameters.
func (s Signature) Validate() error {
	if !s.Return.IsValid() {
		return fmt.Errorf("%w: return type %v", ErrMalformedSignature, s.Return)
	}
	for i, t := range s.Args {
		if !t.IsValid() || t == marshal.Void {
			return fmt.Errorf("%w: argument %d has type %v", ErrMalformedSignature, i, t)
		}
	}
	return nil
}

// CheckArgumentCount fails with *ArgumentCountError unless n matches the
// number of parameters.
func (s Signature) CheckArgumentCount(n int) error {
	if n != len(s.Args) {
		return &ArgumentCountError{Want: len(s.Args), Got: n}
	}
	return nil
}

// String renders the signature as "(i32, pointer) -> void".
func (s Signature) String() string {
	names := make([]string, len(s.Args))
	for i, t := range s.Args {
		names[i] = t.String()
	}
	return "(" + strings.Join(names, ", ") + ") -> " + s.Return.String()
}

// ParseSignature reads the String form back.
func ParseSignature(text string) (Signature, error) {
	params, ret, ok := strings.Cut(text, "->")
	if !ok {
		return Signature{}, fmt.Errorf("%w: missing '->' in %q", ErrMalformedSignature, text)
	}
	params = strings.TrimSpace(params)
	if !strings.HasPrefix(params, "(") || !strings.HasSuffix(params, ")") {
		return Signature{}, fmt.Errorf("%w: parameters must be parenthesised in %q", ErrMalformedSignature, text)
	}

	var sig Signature
	var err error
	if sig.Return, err = marshal.ParseType(strings.TrimSpace(ret)); err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if inner := strings.TrimSpace(params[1 : len(params)-1]); inner != "" {
		for _, name := range strings.Split(inner, ",") {
			t, err := marshal.ParseType(strings.TrimSpace(name))
			if err != nil {
				return Signature{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
			}
			sig.Args = append(sig.Args, t)
		}
	}
	return sig, sig.Validate()
}
