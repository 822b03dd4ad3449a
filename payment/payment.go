package payment

import (
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160"

	"github.com/btcdescriptors/descriptor/network"
)

// Payment is the result of resolving a descriptor shell (or one nested
// inside a sh(...)/wsh(...) wrapper) to concrete script bytes. Redeem, when
// set, is the inner Payment a p2sh/p2wsh wrapper commits to.
type Payment struct {
	Hash          []byte
	WitnessHash   []byte
	Script        []byte
	WitnessScript []byte
	Redeem        *Payment
	PublicKey     *btcec.PublicKey
	Network       network.Network
}

// FromPublicKeyPK builds a bare p2pk Payment: `<pubkey> OP_CHECKSIG`.
func FromPublicKeyPK(pubkey *btcec.PublicKey, net network.Network) *Payment {
	builder := txscript.NewScriptBuilder()
	builder.AddData(pubkey.SerializeCompressed()).AddOp(txscript.OP_CHECKSIG)
	script, _ := builder.Script()

	return &Payment{
		Script:    script,
		Network:   net,
		PublicKey: pubkey,
	}
}

// FromPublicKey builds a p2pkh Payment, plus the p2wpkh witness program for
// the same key so that the wpkh(...) and sh(wpkh(...)) shells can reuse it.
func FromPublicKey(pubkey *btcec.PublicKey, net network.Network) *Payment {
	pubKeyBytes := pubkey.SerializeCompressed()
	pkHash := Hash160(pubKeyBytes)
	script := buildScript(pkHash, "p2pkh")
	witnessScript := buildScript(pkHash, "p2wpkh")

	return &Payment{
		Hash:          pkHash,
		WitnessHash:   pkHash,
		Script:        script,
		WitnessScript: witnessScript,
		Network:       net,
		PublicKey:     pubkey,
	}
}

// FromPayment wraps an existing Payment in a p2sh and/or p2wsh shell,
// matching sh(wpkh(...)), sh(wsh(...)) and wsh(...) descriptor shells. The
// returned Payment's Redeem field is the inner payment being wrapped.
func FromPayment(inner *Payment, wrapWitness, wrapScriptHash bool) (*Payment, error) {
	if inner == nil || len(inner.Script) == 0 {
		return nil, errors.New("payment: inner payment's script can't be empty or nil")
	}

	redeem := inner.copy()

	scriptToHash := redeem.Script
	if len(redeem.WitnessScript) > 0 {
		scriptToHash = redeem.WitnessScript
	}

	out := &Payment{
		Network: redeem.Network,
		Redeem:  redeem,
	}

	if wrapWitness {
		witnessHash := sha256.Sum256(scriptToHash)
		out.WitnessHash = witnessHash[:]
		out.WitnessScript = buildScript(out.WitnessHash, "p2wsh")
	}

	if wrapScriptHash {
		hashInput := scriptToHash
		if wrapWitness {
			hashInput = out.WitnessScript
		}
		out.Hash = Hash160(hashInput)
		out.Script = buildScript(out.Hash, "p2sh")
	} else if wrapWitness {
		out.Script = out.WitnessScript
	}

	return out, nil
}

// FromWitnessScript builds a Payment directly from a compiled witnessScript (the
// output of a miniscript compile), producing its p2wsh scriptPubKey.
func FromWitnessScript(witnessScript []byte, net network.Network) *Payment {
	witnessHash := sha256.Sum256(witnessScript)
	return &Payment{
		WitnessHash:   witnessHash[:],
		WitnessScript: witnessScript,
		Script:        buildScript(witnessHash[:], "p2wsh"),
		Network:       net,
	}
}

// FromRedeemScript builds a Payment directly from a compiled redeemScript
// (the output of a miniscript compile under sh(...)), producing its p2sh
// scriptPubKey.
func FromRedeemScript(redeemScript []byte, net network.Network) *Payment {
	scriptHash := Hash160(redeemScript)
	return &Payment{
		Hash:    scriptHash,
		Script:  buildScript(scriptHash, "p2sh"),
		Network: net,
	}
}

// Address derives the human-readable address for this Payment's
// scriptPubKey under its network.
func (p *Payment) Address() (string, error) {
	if len(p.Script) == 0 {
		return "", errors.New("payment: script can't be empty or nil")
	}
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(p.Script, p.Network.Params)
	if err != nil {
		return "", err
	}
	if class == txscript.NonStandardTy || len(addrs) == 0 {
		return "", errors.New("payment: script has no standard address")
	}
	return addrs[0].EncodeAddress(), nil
}

func (p *Payment) copy() *Payment {
	var pubkey *btcec.PublicKey
	if p.PublicKey != nil {
		pk := *p.PublicKey
		pubkey = &pk
	}
	return &Payment{
		Hash:          p.Hash,
		WitnessHash:   p.WitnessHash,
		Script:        p.Script,
		WitnessScript: p.WitnessScript,
		PublicKey:     pubkey,
		Network:       p.Network,
	}
}

// calcHash calculates the hash of hasher over buf.
func calcHash(buf []byte, hasher hash.Hash) []byte {
	hasher.Write(buf)
	return hasher.Sum(nil)
}

// Hash160 calculates the hash ripemd160(sha256(b)).
func Hash160(buf []byte) []byte {
	return calcHash(calcHash(buf, sha256.New()), ripemd160.New())
}

// buildScript returns the requested scriptType script with the provided hash.
func buildScript(hash []byte, scriptType string) []byte {
	builder := txscript.NewScriptBuilder()

	switch scriptType {
	case "p2pkh":
		builder.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160)
		builder.AddData(hash)
		builder.AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG)
	case "p2sh":
		builder.AddOp(txscript.OP_HASH160).AddData(hash).AddOp(txscript.OP_EQUAL)
	case "p2wpkh", "p2wsh":
		builder.AddOp(txscript.OP_0).AddData(hash)
	}

	script, _ := builder.Script()
	return script
}
