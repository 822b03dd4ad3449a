package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"

	"github.com/btcdescriptors/descriptor/keyexpr"
	"github.com/btcdescriptors/descriptor/miniexpand"
	"github.com/btcdescriptors/descriptor/mscompile"
	"github.com/btcdescriptors/descriptor/network"
	"github.com/btcdescriptors/descriptor/payment"
)

const (
	maxP2WSHScriptSize = 3600
	maxP2SHScriptSize  = 520
	maxNonPushOps      = 201
)

// ExpandOptions are the inputs to Expand, spec.md §4.5. Descriptor and
// Expression are mutually exclusive aliases of the same field — Expression
// is the deprecated name kept for callers migrating off the legacy
// Descriptor-class naming (spec.md §9's "deprecated dual parameter name").
type ExpandOptions struct {
	Descriptor string
	Expression string

	// Index selects one concrete instance of a ranged descriptor.
	Index *uint32

	ChecksumRequired      bool
	AllowMiniscriptInP2SH bool
	Network               network.Network
}

func (o ExpandOptions) resolveDescriptor() (string, error) {
	switch {
	case o.Descriptor != "" && o.Expression != "":
		return "", newError(InvalidDescriptor, "", fmt.Errorf("both descriptor and expression supplied"))
	case o.Descriptor != "":
		return o.Descriptor, nil
	default:
		return o.Expression, nil
	}
}

// Expansion is the output of Expand, spec.md §3's "Expansion" record.
// Optional fields carry an explicit Has* flag so presence is never
// inferred from a zero value.
type Expansion struct {
	CanonicalExpression string
	IsRanged             bool
	shellKind            shell

	HasExpandedExpression bool
	ExpandedExpression    string

	HasMiniscript bool
	Miniscript    string

	HasExpandedMiniscript bool
	ExpandedMiniscript    string

	HasExpansionMap bool
	ExpansionMap    *miniexpand.ExpansionMap

	HasIsSegwit bool
	IsSegwit    bool

	HasPayment bool
	Payment    *payment.Payment

	HasRedeemScript bool
	RedeemScript    []byte

	HasWitnessScript bool
	WitnessScript    []byte
}

// Expand implements spec.md §4.5: verify the checksum, substitute the
// wildcard index, dispatch on the outer shell, and build the resulting
// scripts/payments.
func Expand(opts ExpandOptions) (*Expansion, error) {
	raw, err := opts.resolveDescriptor()
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, newError(InvalidDescriptor, raw, fmt.Errorf("empty descriptor"))
	}

	body, err := stripAndVerifyChecksum(raw, opts.ChecksumRequired)
	if err != nil {
		return nil, err
	}

	isRanged := strings.Contains(body, "*")

	canonicalBody := body
	if opts.Index != nil {
		if !isRanged {
			return nil, newError(InvalidIndex, raw, fmt.Errorf("index supplied for a non-ranged descriptor"))
		}
		canonicalBody = substituteWildcard(body, *opts.Index)
	}

	net := opts.Network
	if net.Params == nil {
		net = network.Mainnet
	}

	shellKind, inner := classify(canonicalBody)
	if shellKind == shellUnknown {
		return nil, newError(InvalidDescriptor, raw, fmt.Errorf("unparseable descriptor"))
	}

	exp := &Expansion{
		CanonicalExpression: canonicalBody,
		IsRanged:            isRanged,
		shellKind:           shellKind,
	}

	switch shellKind {
	case shellAddr:
		if isRanged {
			return nil, newError(InvalidDescriptor, raw, fmt.Errorf("addr() cannot be ranged"))
		}
		return expandAddr(exp, inner, net)
	case shellPK:
		return expandSingleKey(exp, inner, net, false, buildPK)
	case shellPKH:
		return expandSingleKey(exp, inner, net, false, buildPKH)
	case shellWPKH:
		return expandSingleKey(exp, inner, net, true, buildWPKH)
	case shellShWpkh:
		return expandShWpkh(exp, inner, net)
	case shellShWsh:
		return expandMiniscriptWrapped(exp, inner, net, true, true)
	case shellWsh:
		return expandMiniscriptWrapped(exp, inner, net, true, false)
	case shellSh:
		if !opts.AllowMiniscriptInP2SH && !allowedAsP2SHMiniscript(inner) {
			return nil, newError(InvalidDescriptor, raw, fmt.Errorf("sh(...) body %q not in the miniscript whitelist", inner))
		}
		return expandMiniscriptWrapped(exp, inner, net, false, true)
	default:
		return nil, newError(InvalidDescriptor, raw, fmt.Errorf("unparseable descriptor"))
	}
}

func stripAndVerifyChecksum(raw string, required bool) (string, error) {
	idx := strings.LastIndexByte(raw, '#')
	if idx < 0 {
		if required {
			return "", newError(BadChecksum, raw, fmt.Errorf("checksum required but absent"))
		}
		return raw, nil
	}

	body, chk := raw[:idx], raw[idx+1:]
	if err := verifyChecksum(body, chk); err != nil {
		return "", newError(BadChecksum, raw, err)
	}
	return body, nil
}

func substituteWildcard(body string, index uint32) string {
	return strings.ReplaceAll(body, "*", strconv.FormatUint(uint64(index), 10))
}

func expandAddr(exp *Expansion, addrStr string, net network.Network) (*Expansion, error) {
	p, err := payment.FromAddress(addrStr, net)
	if err != nil {
		return nil, newError(InvalidAddress, addrStr, err)
	}
	exp.HasPayment = true
	exp.Payment = p
	return exp, nil
}

func expandSingleKey(
	exp *Expansion, keyExprStr string, net network.Network, isSegwit bool,
	build func(info *keyexpr.KeyInfo, net network.Network) (*payment.Payment, error),
) (*Expansion, error) {
	info, err := keyexpr.Parse(keyExprStr, isSegwit, net)
	if err != nil {
		return nil, newError(InvalidKeyExpression, keyExprStr, err)
	}

	exp.HasIsSegwit = true
	exp.IsSegwit = isSegwit
	exp.HasExpandedExpression = true
	exp.ExpandedExpression = strings.Replace(exp.CanonicalExpression, keyExprStr, "@0", 1)
	exp.HasExpansionMap = true
	exp.ExpansionMap = miniexpand.NewSingleton(info)

	if exp.IsRanged && info.Pubkey == nil {
		// Shape-only: no index was supplied, the payment stays absent.
		return exp, nil
	}

	p, err := build(info, net)
	if err != nil {
		return nil, newError(InvalidKeyExpression, keyExprStr, err)
	}
	exp.HasPayment = true
	exp.Payment = p
	return exp, nil
}

func buildPK(info *keyexpr.KeyInfo, net network.Network) (*payment.Payment, error) {
	return payment.FromPublicKeyPK(info.ECPubKey, net), nil
}

func buildPKH(info *keyexpr.KeyInfo, net network.Network) (*payment.Payment, error) {
	return payment.FromPublicKey(info.ECPubKey, net), nil
}

func buildWPKH(info *keyexpr.KeyInfo, net network.Network) (*payment.Payment, error) {
	if len(info.Pubkey) != 33 {
		return nil, fmt.Errorf("wpkh requires a compressed key")
	}
	return buildWPKHPayment(info, net), nil
}

func buildWPKHPayment(info *keyexpr.KeyInfo, net network.Network) *payment.Payment {
	full := payment.FromPublicKey(info.ECPubKey, net)
	return &payment.Payment{
		Hash:          full.Hash,
		WitnessHash:   full.WitnessHash,
		Script:        full.WitnessScript,
		WitnessScript: full.WitnessScript,
		Network:       net,
		PublicKey:     info.ECPubKey,
	}
}

func expandShWpkh(exp *Expansion, keyExprStr string, net network.Network) (*Expansion, error) {
	info, err := keyexpr.Parse(keyExprStr, true, net)
	if err != nil {
		return nil, newError(InvalidKeyExpression, keyExprStr, err)
	}

	exp.HasIsSegwit = true
	exp.IsSegwit = true
	exp.HasExpandedExpression = true
	exp.ExpandedExpression = "sh(wpkh(@0))"
	exp.HasExpansionMap = true
	exp.ExpansionMap = miniexpand.NewSingleton(info)

	if exp.IsRanged && info.Pubkey == nil {
		return exp, nil
	}

	if len(info.Pubkey) != 33 {
		return nil, newError(InvalidKeyExpression, keyExprStr, fmt.Errorf("sh(wpkh(...)) requires a compressed key"))
	}

	inner := buildWPKHPayment(info, net)
	wrapped, err := payment.FromPayment(inner, false, true)
	if err != nil {
		return nil, newError(InvalidKeyExpression, keyExprStr, err)
	}

	exp.HasPayment = true
	exp.Payment = wrapped
	exp.HasRedeemScript = true
	exp.RedeemScript = inner.Script
	return exp, nil
}

// expandMiniscriptWrapped handles wsh(MS), sh(wsh(MS)) and sh(MS).
func expandMiniscriptWrapped(
	exp *Expansion, ms string, net network.Network, wrapWitness, wrapScriptHash bool,
) (*Expansion, error) {
	isSegwit := wrapWitness

	expanded, err := miniexpand.Expand(ms, isSegwit, net)
	if err != nil {
		return nil, newError(InvalidKeyExpression, ms, err)
	}

	exp.HasIsSegwit = true
	exp.IsSegwit = isSegwit
	exp.HasMiniscript = true
	exp.Miniscript = ms
	exp.HasExpandedMiniscript = true
	exp.ExpandedMiniscript = expanded.Expanded
	exp.HasExpansionMap = true
	exp.ExpansionMap = expanded.Map

	exp.HasExpandedExpression = true
	exp.ExpandedExpression = wrapOuterExpression(expanded.Expanded, wrapWitness, wrapScriptHash)

	if _, err := expanded.Map.Pubkeys(); err != nil {
		// Shape-only: at least one key is still a deferred wildcard.
		return exp, nil
	}

	keyBytes, err := expansionMapToKeyBytes(expanded.Map)
	if err != nil {
		return nil, newError(InvalidKeyExpression, ms, err)
	}

	compiled, err := mscompile.Default.Compile(expanded.Expanded, keyBytes)
	if err != nil {
		return nil, newError(InvalidDescriptor, ms, err)
	}

	maxBytes := maxP2WSHScriptSize
	if !wrapWitness {
		maxBytes = maxP2SHScriptSize
	}
	if err := checkScriptLimits(compiled, maxBytes, ms); err != nil {
		return nil, err
	}

	var out *payment.Payment
	switch {
	case wrapWitness && wrapScriptHash:
		wshPayment := payment.FromWitnessScript(compiled, net)
		exp.HasWitnessScript = true
		exp.WitnessScript = compiled

		synthetic := &payment.Payment{Script: wshPayment.Script, Network: net}
		wrapped, err := payment.FromPayment(synthetic, false, true)
		if err != nil {
			return nil, newError(InvalidDescriptor, ms, err)
		}
		out = wrapped
		exp.HasRedeemScript = true
		exp.RedeemScript = wshPayment.Script

	case wrapWitness:
		out = payment.FromWitnessScript(compiled, net)
		exp.HasWitnessScript = true
		exp.WitnessScript = compiled

	default:
		out = payment.FromRedeemScript(compiled, net)
		exp.HasRedeemScript = true
		exp.RedeemScript = compiled
	}

	exp.HasPayment = true
	exp.Payment = out
	return exp, nil
}

func wrapOuterExpression(expandedMiniscript string, wrapWitness, wrapScriptHash bool) string {
	expr := expandedMiniscript
	if wrapWitness {
		expr = "wsh(" + expr + ")"
	}
	if wrapScriptHash {
		expr = "sh(" + expr + ")"
	}
	return expr
}

func expansionMapToKeyBytes(m *miniexpand.ExpansionMap) (map[string][]byte, error) {
	out := make(map[string][]byte, len(m.Order))
	for _, placeholder := range m.Order {
		info := m.Get(placeholder)
		if info.Pubkey == nil {
			return nil, fmt.Errorf("descriptor: %s is not materialized", placeholder)
		}
		out[placeholder] = info.Pubkey
	}
	return out, nil
}

func checkScriptLimits(script []byte, maxBytes int, input string) error {
	if len(script) > maxBytes {
		return newError(ScriptTooLarge, input, fmt.Errorf("compiled script is %d bytes, max %d", len(script), maxBytes))
	}
	ops, err := countNonPushOps(script)
	if err != nil {
		return newError(InvalidDescriptor, input, fmt.Errorf("decompiling compiled script: %w", err))
	}
	if ops > maxNonPushOps {
		return newError(TooManyOps, input, fmt.Errorf("compiled script has %d non-push opcodes, max %d", ops, maxNonPushOps))
	}
	return nil
}

func countNonPushOps(script []byte) (int, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	count := 0
	for tokenizer.Next() {
		if tokenizer.Opcode() > txscript.OP_16 {
			count++
		}
	}
	if err := tokenizer.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
