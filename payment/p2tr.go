package payment

import (
	"github.com/btcdescriptors/descriptor/address"
	"github.com/btcdescriptors/descriptor/network"
)

// FromAddress decodes addr and wraps its scriptPubKey in a Payment. It is
// the payment/address collaborator the addr(...) descriptor shell uses;
// unlike the other constructors in this package it can resolve to any of
// the five standard forms, including p2tr — the one payment form this
// engine never constructs on its own (no tr(...) shell exists in the
// descriptor grammar), only recognizes when decoding an address.
func FromAddress(addr string, net network.Network) (*Payment, error) {
	decoded, err := address.Decode(addr, net)
	if err != nil {
		return nil, err
	}

	p := &Payment{
		Script:  decoded.ScriptPubKey,
		Network: net,
	}

	switch decoded.Kind {
	case address.KindP2PKH:
		p.Hash = decoded.ScriptPubKey[3 : len(decoded.ScriptPubKey)-2]
	case address.KindP2SH:
		p.Hash = decoded.ScriptPubKey[2 : len(decoded.ScriptPubKey)-1]
	case address.KindP2WPKH, address.KindP2WSH:
		p.WitnessHash = decoded.ScriptPubKey[2:]
		p.WitnessScript = decoded.ScriptPubKey
	}

	return p, nil
}
