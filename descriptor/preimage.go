package descriptor

// Preimage pairs a hash digest a miniscript's sha256()/hash256()/ripemd160()/
// hash160() fragment commits to with the secret preimage that satisfies it.
type Preimage struct {
	Digest   []byte
	Preimage []byte
}
