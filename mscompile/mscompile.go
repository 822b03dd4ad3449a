// Package mscompile defines the miniscript compiler/satisfier collaborator
// named in spec.md §6. Both halves are, per spec.md §1's Non-goals,
// external collaborators: this module never implements miniscript
// compilation or satisfaction itself. Compile has a default implementation
// wired to the real github.com/btcsuite/btcd/txscript/miniscript package
// (its Parse/ApplyVars/Script entry points, which are public and stable);
// Satisfy has none — "we do not implement the miniscript satisfier" is a
// literal Non-goal, so a Satisfier must be supplied by the caller embedding
// this engine (descriptor.WithSatisfier); unlike the EC backend in package
// ecc, there is no package-level default to fall back on.
package mscompile

import (
	"encoding/hex"
	"fmt"

	btcdminiscript "github.com/btcsuite/btcd/txscript/miniscript"
)

// SignatureLookup resolves a pubkey to a signature a satisfier can use,
// returning ok=false when no signature is available for that key.
type SignatureLookup func(pubkey []byte) (signature []byte, ok bool)

// PreimageLookup resolves a hash digest to its preimage.
type PreimageLookup func(digest []byte) (preimage []byte, ok bool)

// TimeConstraints pins the nLockTime/nSequence a satisfaction is allowed to
// require, per spec.md §4.6's temporal-constraints algorithm: computed
// once with fake signatures, then asserted unchanged when satisfying with
// real ones.
type TimeConstraints struct {
	LockTime    uint32
	HasLockTime bool
	Sequence    uint32
	HasSequence bool
}

// Satisfaction is the result spec.md §6's satisfy(...) entry point
// produces: the witness stack elements plus the time constraints the
// chosen spending path actually requires.
type Satisfaction struct {
	Witness  [][]byte
	LockTime uint32
	Sequence uint32
}

// Request bundles everything a Satisfier needs, mirroring spec.md §6's
// satisfy({ expandedMiniscript, expansionMap, signatures, preimages,
// timeConstraints }) shape. ExpansionMap maps each "@i" placeholder to the
// raw key bytes the compiler would have substituted for it.
type Request struct {
	ExpandedMiniscript string
	ExpansionMap       map[string][]byte
	Signatures         SignatureLookup
	Preimages          PreimageLookup
	TimeConstraints    *TimeConstraints
}

// Satisfier is the external miniscript-satisfier collaborator. This
// package provides no default implementation; descriptor.Output requires
// one to be injected at factory time whenever a satisfaction is requested.
type Satisfier interface {
	Satisfy(req Request) (*Satisfaction, error)
}

// Compiler is the external miniscript-compiler collaborator: substitute
// each "@i" in expandedMiniscript with its bound key bytes and return the
// compiled Bitcoin Script.
type Compiler interface {
	Compile(expandedMiniscript string, expansionMap map[string][]byte) ([]byte, error)
}

// Default is the btcd-backed Compiler used unless a caller supplies their
// own.
var Default Compiler = btcdCompiler{}

type btcdCompiler struct{}

func (btcdCompiler) Compile(expandedMiniscript string, expansionMap map[string][]byte) ([]byte, error) {
	ast, err := btcdminiscript.Parse(expandedMiniscript)
	if err != nil {
		return nil, fmt.Errorf("mscompile: parsing %q: %w", expandedMiniscript, err)
	}

	if err := ast.IsValidTopLevel(); err != nil {
		return nil, fmt.Errorf("mscompile: %q is not a valid top-level miniscript: %w", expandedMiniscript, err)
	}

	lookup := func(identifier string) ([]byte, error) {
		if val, ok := expansionMap[identifier]; ok {
			return val, nil
		}
		// Not a placeholder: let ApplyVars fall back to parsing the
		// identifier as a literal hex-encoded key or hash value.
		if _, err := hex.DecodeString(identifier); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("mscompile: unresolved identifier %q", identifier)
	}

	if err := ast.ApplyVars(lookup); err != nil {
		return nil, fmt.Errorf("mscompile: substituting variables: %w", err)
	}

	script, err := ast.Script()
	if err != nil {
		return nil, fmt.Errorf("mscompile: compiling script: %w", err)
	}

	return script, nil
}
