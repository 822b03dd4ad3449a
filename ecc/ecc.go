// Package ecc is the elliptic-curve backend collaborator named in spec.md
// §6: point validation, compression and Schnorr/ECDSA verification over
// secp256k1. The backend in use is the package-level Default, which package
// descriptor reads directly when validating PSBT signatures; it is not
// passed to or stored in an Output, so replacing Default affects every
// Output in the process.
package ecc

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
)

// Backend is the capability set the descriptor engine needs from an
// elliptic-curve library. Default is btcec/v2; it exists as an interface
// so a caller embedding this module alongside a hardware signer or an
// alternate curve library can swap in their own implementation without
// touching the engine.
type Backend interface {
	// IsPoint reports whether buf is a validly-encoded curve point
	// (33-byte compressed or 32-byte x-only).
	IsPoint(buf []byte) bool
	// IsPrivate reports whether buf is a valid secp256k1 scalar.
	IsPrivate(buf []byte) bool
	// PointFromScalar derives the compressed public key for a private
	// scalar.
	PointFromScalar(scalar []byte) ([]byte, error)
	// PointCompress normalizes a point's encoding to compressed (or
	// x-only, when xOnly is set).
	PointCompress(point []byte, xOnly bool) ([]byte, error)
	// XOnlyPointAddTweak computes the BIP341 taproot output key for the
	// x-only internal key point, with tweak taken as the script-tree root:
	// the point and tweak are hashed under the TapTweak tag and that hash,
	// not tweak itself, is added to the point. Also returns the parity.
	XOnlyPointAddTweak(point, tweak []byte) ([]byte, byte, error)
	// Verify checks an ECDSA or Schnorr signature over a 32-byte
	// message hash, depending on the point's encoding.
	Verify(point, hash, signature []byte) bool
}

// Default is the btcec/v2-backed Backend used unless a caller supplies
// their own.
var Default Backend = btcecBackend{}

type btcecBackend struct{}

func (btcecBackend) IsPoint(buf []byte) bool {
	switch len(buf) {
	case 33:
		_, err := btcec.ParsePubKey(buf)
		return err == nil
	case 32:
		_, err := schnorr.ParsePubKey(buf)
		return err == nil
	default:
		return false
	}
}

func (btcecBackend) IsPrivate(buf []byte) bool {
	if len(buf) != 32 {
		return false
	}
	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(buf)
	return !overflow && !scalar.IsZero()
}

func (btcecBackend) PointFromScalar(scalar []byte) ([]byte, error) {
	priv, pub := btcec.PrivKeyFromBytes(scalar)
	defer priv.Zero()
	return pub.SerializeCompressed(), nil
}

func (btcecBackend) PointCompress(point []byte, xOnly bool) ([]byte, error) {
	pub, err := parsePoint(point)
	if err != nil {
		return nil, err
	}
	if xOnly {
		return schnorr.SerializePubKey(pub), nil
	}
	return pub.SerializeCompressed(), nil
}

func (btcecBackend) XOnlyPointAddTweak(point, tweak []byte) ([]byte, byte, error) {
	internal, err := schnorr.ParsePubKey(point)
	if err != nil {
		return nil, 0, err
	}

	tweakedKey := txscript.ComputeTaprootOutputKey(internal, tweak)

	parity := byte(0)
	if tweakedKey.SerializeCompressed()[0] == secp256k1OddByte {
		parity = 1
	}

	return schnorr.SerializePubKey(tweakedKey), parity, nil
}

const secp256k1OddByte = 0x03

func (btcecBackend) Verify(point, hash, signature []byte) bool {
	switch len(point) {
	case 32:
		pub, err := schnorr.ParsePubKey(point)
		if err != nil {
			return false
		}
		sig, err := schnorr.ParseSignature(signature)
		if err != nil {
			return false
		}
		return sig.Verify(hash, pub)
	case 33:
		pub, err := btcec.ParsePubKey(point)
		if err != nil {
			return false
		}
		sig, err := ecdsa.ParseDERSignature(signature)
		if err != nil {
			return false
		}
		return sig.Verify(hash, pub)
	default:
		return false
	}
}

func parsePoint(point []byte) (*btcec.PublicKey, error) {
	if len(point) == 32 {
		return schnorr.ParsePubKey(point)
	}
	return btcec.ParsePubKey(point)
}
