// Package keyexpr parses a single descriptor key expression — the
// "[fingerprint/origin]xpub.../path" / raw-pubkey / WIF grammar described
// in spec.md §4.3 — into a structured KeyInfo record. It is grounded on
// the teacher's descriptor/parser.go (parseKeyExpression,
// parseKeyOriginInfo, parseKey, isPubKey/isWif/isExtended), generalized to
// use the real BIP32/WIF/EC-point libraries instead of the teacher's
// elements-flavored stand-ins.
package keyexpr

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"golang.org/x/crypto/ripemd160"

	"github.com/btcdescriptors/descriptor/network"
)

// Grammar is the unanchored regexp used by miniexpand to find the longest
// maximal key-expression substring inside a miniscript, per spec.md §4.4
// step 1. It recognizes, in order: an optional origin, then a 33/32-byte
// hex pubkey, a WIF, or an extended xpub/xprv/tpub/tprv key, followed by an
// optional derivation path and terminal wildcard.
var Grammar = regexp.MustCompile(
	`(\[[0-9a-fA-F]{8}(?:/[0-9]+[h']?)*\])?` +
		`(` +
		`[0-9A-Fa-f]{66}|[0-9A-Fa-f]{64}|` +
		`[Kk5LlcC9][1-9A-HJ-NP-Za-km-z]{50,51}|` +
		`(?:xprv|xpub|tprv|tpub)[1-9A-HJ-NP-Za-km-z]{100,112}` +
		`)` +
		`((?:/[0-9]+[h']?)*(?:/\*[h']?)?)`,
)

// KeyInfo is one parsed key participant of a descriptor, spec.md §3.
type KeyInfo struct {
	// KeyExpression is the verbatim source substring this record was
	// parsed from.
	KeyExpression string

	Origin *Origin

	// BIP32 is set when the key expression is an extended key. It holds
	// the key at the *origin* level — Path has not been applied to it
	// yet, so the same KeyInfo can be cheaply re-derived for any index
	// of a ranged path.
	BIP32 *hdkeychain.ExtendedKey
	// Path is the derivation suffix after the extended key, wildcard
	// excluded.
	Path []uint32
	// IsRanged is true when the source path ended in "/*" or "/*'".
	IsRanged         bool
	WildcardHardened bool

	// ECPubKey is set when the key expression is a raw pubkey or a WIF.
	ECPubKey *btcec.PublicKey
	WIF      *btcutil.WIF

	// Pubkey is the materialized compressed (33-byte) encoding of this
	// key, present whenever the record does not still need a wildcard
	// index substituted. The only source that can instead leave this
	// x-only (32-byte) is a literal 32-byte hex key expression — this
	// engine's shell grammar never reaches a taproot context that would
	// ask for x-only encoding itself.
	Pubkey []byte

	network network.Network
}

// Parse parses a single key expression. isSegwit only controls whether an
// uncompressed key must be rejected (Segwit v0 requires compressed keys);
// it never selects x-only encoding, which this engine's shell grammar
// never needs — that would only apply to a taproot context this spec
// doesn't reach.
func Parse(keyExpression string, isSegwit bool, net network.Network) (*KeyInfo, error) {
	origin, rest, err := splitOrigin(keyExpression)
	if err != nil {
		return nil, err
	}

	info := &KeyInfo{
		KeyExpression: keyExpression,
		Origin:        origin,
		network:       net,
	}

	switch {
	case isHexPubKey(rest):
		pub, xOnly, err := parseHexPubKey(rest, isSegwit)
		if err != nil {
			return nil, err
		}
		info.ECPubKey = pub
		info.Pubkey = encodePubKey(pub, xOnly)
		return info, nil

	case isWIF(rest):
		wif, err := btcutil.DecodeWIF(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedKey, err)
		}
		if isSegwit && !wif.CompressPubKey {
			return nil, ErrUncompressedInSegwit
		}
		info.WIF = wif
		info.ECPubKey = wif.PrivKey.PubKey()
		info.Pubkey = encodePubKey(info.ECPubKey, false)
		return info, nil

	case isExtendedKey(rest):
		key, path, err := parseExtendedKey(rest)
		if err != nil {
			return nil, err
		}
		info.BIP32 = key
		info.Path = path.fixed
		info.IsRanged = path.wildcard
		info.WildcardHardened = path.wildcardHardened
		if !info.IsRanged {
			pub, err := derivePubKey(key, path.fixed)
			if err != nil {
				return nil, err
			}
			info.ECPubKey = pub
			info.Pubkey = encodePubKey(pub, false)
		}
		return info, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedKey, rest)
	}
}

// Materialize substitutes index for this KeyInfo's wildcard and returns a
// new, fully materialized KeyInfo (component C's "deferred materialization
// until the wildcard is substituted").
func (k *KeyInfo) Materialize(index uint32) (*KeyInfo, error) {
	if !k.IsRanged {
		return nil, ErrNotRanged
	}

	out := *k
	out.IsRanged = false

	wildcardIndex := index
	if k.WildcardHardened {
		wildcardIndex += hdkeychain.HardenedKeyStart
	}

	fullPath := append(append([]uint32{}, k.Path...), wildcardIndex)
	out.Path = fullPath

	pub, err := derivePubKey(k.BIP32, fullPath)
	if err != nil {
		return nil, err
	}
	out.ECPubKey = pub
	out.Pubkey = encodePubKey(pub, false)

	return &out, nil
}

// MasterFingerprint returns the BIP32 master key fingerprint to record in a
// PSBT bip32Derivation field: the key expression's own [origin] prefix when
// present, otherwise the fingerprint of the extended key's own pubkey (it is
// then assumed to be the master). Returns ok=false for raw pubkey/WIF keys,
// which carry no derivation path to report.
func (k *KeyInfo) MasterFingerprint() (fingerprint uint32, ok bool) {
	if k.Origin != nil {
		return k.Origin.FingerprintUint32(), true
	}
	if k.BIP32 == nil {
		return 0, false
	}
	pub, err := k.BIP32.ECPubKey()
	if err != nil {
		return 0, false
	}
	h := hash160(pub.SerializeCompressed())
	return binary.LittleEndian.Uint32(h[:4]), true
}

func hash160(buf []byte) []byte {
	h := sha256.Sum256(buf)
	r := ripemd160.New()
	r.Write(h[:])
	return r.Sum(nil)
}

// FullDerivationPath concatenates this key's Origin.Path (if present) with
// its own Path, for reporting/PSBT bip32-derivation purposes.
func (k *KeyInfo) FullDerivationPath() []uint32 {
	var path []uint32
	if k.Origin != nil {
		path = append(path, k.Origin.Path...)
	}
	path = append(path, k.Path...)
	return path
}

func derivePubKey(key *hdkeychain.ExtendedKey, path []uint32) (*btcec.PublicKey, error) {
	current := key
	for _, step := range path {
		child, err := current.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("keyexpr: deriving child %d: %w", step, err)
		}
		current = child
	}
	return current.ECPubKey()
}

func encodePubKey(pub *btcec.PublicKey, xOnly bool) []byte {
	if xOnly {
		return schnorr.SerializePubKey(pub)
	}
	return pub.SerializeCompressed()
}

func isHexPubKey(s string) bool {
	if len(s) != 66 && len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// parseHexPubKey parses a literal hex-encoded pubkey. xOnly reports
// whether the literal was a 32-byte x-only key (that encoding is a
// property of the source string, not of the isSegwit context) — it is
// never derived from isSegwit, which here only rejects an uncompressed
// key where Segwit v0 requires a compressed one.
func parseHexPubKey(s string, isSegwit bool) (pub *btcec.PublicKey, xOnly bool, err error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnrecognizedKey, err)
	}

	if len(buf) == 32 {
		pub, err = schnorr.ParsePubKey(buf)
		return pub, true, err
	}

	if len(buf) == 33 {
		if isSegwit && buf[0] != 0x02 && buf[0] != 0x03 {
			return nil, false, ErrUncompressedInSegwit
		}
		pub, err = btcec.ParsePubKey(buf)
		return pub, false, err
	}

	if len(buf) == 65 {
		if isSegwit {
			return nil, false, ErrUncompressedInSegwit
		}
		pub, err = btcec.ParsePubKey(buf)
		return pub, false, err
	}

	return nil, false, fmt.Errorf("%w: unexpected pubkey length %d", ErrUnrecognizedKey, len(buf))
}

func isWIF(s string) bool {
	_, err := btcutil.DecodeWIF(s)
	return err == nil
}

func isExtendedKey(s string) bool {
	key := s
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		key = s[:idx]
	}
	return strings.HasPrefix(key, "xprv") || strings.HasPrefix(key, "xpub") ||
		strings.HasPrefix(key, "tprv") || strings.HasPrefix(key, "tpub")
}

type extendedPath struct {
	fixed            []uint32
	wildcard         bool
	wildcardHardened bool
}

func parseExtendedKey(s string) (*hdkeychain.ExtendedKey, *extendedPath, error) {
	idx := strings.IndexByte(s, '/')
	keyStr := s
	pathStr := ""
	if idx >= 0 {
		keyStr = s[:idx]
		pathStr = s[idx:]
	}

	key, err := hdkeychain.NewKeyFromString(keyStr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnrecognizedKey, err)
	}

	components, wildcard, wildcardHardened, err := splitPath(pathStr)
	if err != nil {
		return nil, nil, err
	}

	fixed, err := parsePathComponents(components)
	if err != nil {
		return nil, nil, err
	}

	return key, &extendedPath{fixed: fixed, wildcard: wildcard, wildcardHardened: wildcardHardened}, nil
}
