// Package network maps the Bitcoin networks this module understands to the
// parameter sets that the rest of the stack (address decoding, BIP32
// derivation, WIF decoding) keys off of.
package network

import "github.com/btcsuite/btcd/chaincfg"

// Network pins a human-readable name to the chaincfg.Params that describe
// it. Descriptor parsing and address encoding/decoding are always
// performed against one of these.
type Network struct {
	Name   string
	Params *chaincfg.Params
}

// Mainnet is the Bitcoin production network.
var Mainnet = Network{Name: "mainnet", Params: &chaincfg.MainNetParams}

// Testnet is the public Bitcoin test network (testnet3).
var Testnet = Network{Name: "testnet", Params: &chaincfg.TestNet3Params}

// Regtest is a local, fully-controllable regression test network.
var Regtest = Network{Name: "regtest", Params: &chaincfg.RegressionNetParams}

// Signet is the coordinated signet test network.
var Signet = Network{Name: "signet", Params: &chaincfg.SigNetParams}

var byName = map[string]Network{
	Mainnet.Name: Mainnet,
	Testnet.Name: Testnet,
	Regtest.Name: Regtest,
	Signet.Name:  Signet,
}

// ByName looks up one of the well-known networks above by name.
func ByName(name string) (Network, bool) {
	n, ok := byName[name]
	return n, ok
}
