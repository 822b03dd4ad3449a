// Package miniexpand implements spec.md §4.4: given a textual miniscript
// with embedded key expressions, it replaces each distinct key expression
// with a fresh "@i" placeholder (left-to-right first-appearance order,
// duplicates sharing a placeholder) and parses each one into a
// keyexpr.KeyInfo, producing the expansion map the miniscript compiler and
// satisfier collaborators consume.
package miniexpand

import (
	"fmt"
	"strings"

	"github.com/btcdescriptors/descriptor/keyexpr"
	"github.com/btcdescriptors/descriptor/network"
)

// ExpansionMap is the ordered "@0, @1, ..." to KeyInfo correspondence from
// spec.md §3.
type ExpansionMap struct {
	// Order holds the placeholders in first-appearance order ("@0",
	// "@1", ...).
	Order []string
	byKey map[string]*keyexpr.KeyInfo
}

// Get returns the KeyInfo bound to a placeholder, or nil if unknown.
func (m *ExpansionMap) Get(placeholder string) *keyexpr.KeyInfo {
	return m.byKey[placeholder]
}

// Pubkeys returns, in Order, the materialized pubkey bytes for every entry.
// Fails if any entry is still ranged (not yet materialized).
func (m *ExpansionMap) Pubkeys() ([][]byte, error) {
	pubkeys := make([][]byte, 0, len(m.Order))
	for _, placeholder := range m.Order {
		info := m.byKey[placeholder]
		if info.Pubkey == nil {
			return nil, fmt.Errorf("miniexpand: %s is not materialized", placeholder)
		}
		pubkeys = append(pubkeys, info.Pubkey)
	}
	return pubkeys, nil
}

// Materialize returns a new ExpansionMap with every ranged entry
// substituted for index.
func (m *ExpansionMap) Materialize(index uint32) (*ExpansionMap, error) {
	out := &ExpansionMap{
		Order: m.Order,
		byKey: make(map[string]*keyexpr.KeyInfo, len(m.byKey)),
	}
	for placeholder, info := range m.byKey {
		if !info.IsRanged {
			out.byKey[placeholder] = info
			continue
		}
		materialized, err := info.Materialize(index)
		if err != nil {
			return nil, err
		}
		out.byKey[placeholder] = materialized
	}
	return out, nil
}

// NewSingleton builds a one-entry ExpansionMap bound to "@0", for descriptor
// shells that embed exactly one key expression directly (pk/pkh/wpkh and the
// sh(wpkh(...)) wrapper) rather than a full miniscript.
func NewSingleton(info *keyexpr.KeyInfo) *ExpansionMap {
	return &ExpansionMap{
		Order: []string{"@0"},
		byKey: map[string]*keyexpr.KeyInfo{"@0": info},
	}
}

// Expansion is the result of expanding a miniscript.
type Expansion struct {
	Expanded string
	Map      *ExpansionMap
}

// Expand scans miniscriptText for key expressions using keyexpr.Grammar,
// replaces each distinct one with an "@i" placeholder, and parses each
// distinct expression once via keyexpr.Parse.
func Expand(miniscriptText string, isSegwit bool, net network.Network) (*Expansion, error) {
	matches := keyexpr.Grammar.FindAllStringIndex(miniscriptText, -1)

	placeholderOf := make(map[string]string)
	order := make([]string, 0)
	infos := make(map[string]*keyexpr.KeyInfo)

	var out []byte
	cursor := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		// The 64-hex argument of sha256()/hash256() is a hash digest, not a
		// key expression: it stays in the text as a literal.
		if strings.HasSuffix(miniscriptText[:start], "sha256(") || strings.HasSuffix(miniscriptText[:start], "hash256(") {
			continue
		}
		out = append(out, miniscriptText[cursor:start]...)

		expr := miniscriptText[start:end]
		placeholder, ok := placeholderOf[expr]
		if !ok {
			info, err := keyexpr.Parse(expr, isSegwit, net)
			if err != nil {
				return nil, fmt.Errorf("miniexpand: key expression %q: %w", expr, err)
			}
			placeholder = fmt.Sprintf("@%d", len(order))
			placeholderOf[expr] = placeholder
			order = append(order, placeholder)
			infos[placeholder] = info
		}

		out = append(out, placeholder...)
		cursor = end
	}
	out = append(out, miniscriptText[cursor:]...)

	return &Expansion{
		Expanded: string(out),
		Map: &ExpansionMap{
			Order: order,
			byKey: infos,
		},
	}, nil
}
