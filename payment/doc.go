/*
Package payment builds the scriptPubKey, witness/redeem scripts and address
for the standard Bitcoin payment forms a descriptor shell can resolve to:
p2pk, p2pkh, p2wpkh, and p2sh/p2wsh wrapping an arbitrary script (including
a compiled miniscript). It also recognizes p2tr outputs for the purposes of
decoding an addr(...) descriptor, though this module never constructs a
p2tr scriptPubKey of its own (no top-level tr(...) shell is defined by the
descriptor grammar this engine implements).

It is the narrow-interface payment/address collaborator spec.md describes:
callers never build scripts by hand, they ask this package for a Payment.
*/
package payment
