// Package descriptor parses Bitcoin output descriptors (BIP380 and its
// companion BIPs) into concrete scripts, addresses and PSBT updates. It
// expands pk/pkh/wpkh/sh(wpkh)/wsh/sh(wsh)/sh/addr descriptors, including
// miniscript bodies, and resolves ranged ("/*") descriptors to one concrete
// instance at a time via Output.AtIndex.
package descriptor
