package keyexpr

import "errors"

// Sentinel errors this package can return, wrapped with the offending
// fragment by the caller (descriptor.Error wraps these with ErrorKind
// InvalidKeyExpression).
var (
	ErrMalformedOrigin      = errors.New("keyexpr: malformed key origin")
	ErrBadFingerprint       = errors.New("keyexpr: fingerprint must be 8 hex chars")
	ErrInvalidPathStep      = errors.New("keyexpr: invalid derivation path step")
	ErrUnrecognizedKey      = errors.New("keyexpr: key is not a pubkey, WIF or extended key")
	ErrUncompressedInSegwit = errors.New("keyexpr: uncompressed public key not allowed in a segwit context")
	ErrWildcardNotMaterialized = errors.New("keyexpr: key expression still contains an unresolved wildcard")
	ErrNotRanged            = errors.New("keyexpr: key expression has no wildcard to substitute")
)
