package keyexpr

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// parsePathComponents turns a slice of path steps such as "44'", "0h", "0"
// into BIP32 child indices, hardening the index when the step carries the
// "'" or "h" hardened marker. Grounded on the teacher's descriptor/parser.go
// parsePath, generalized to accept either hardened marker.
func parsePathComponents(components []string) ([]uint32, error) {
	if len(components) == 0 {
		return nil, nil
	}

	result := make([]uint32, 0, len(components))
	for _, component := range components {
		component = strings.TrimSpace(component)

		var hardened uint32
		switch {
		case strings.HasSuffix(component, "'"):
			hardened = hdkeychain.HardenedKeyStart
			component = strings.TrimSuffix(component, "'")
		case strings.HasSuffix(component, "h"):
			hardened = hdkeychain.HardenedKeyStart
			component = strings.TrimSuffix(component, "h")
		}

		bigVal, ok := new(big.Int).SetString(component, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPathStep, component)
		}

		maxVal := math.MaxUint32 - hardened
		if bigVal.Sign() < 0 || bigVal.Cmp(big.NewInt(int64(maxVal))) > 0 {
			return nil, fmt.Errorf("%w: %q out of range [0, %d]", ErrInvalidPathStep, component, maxVal)
		}

		result = append(result, hardened+uint32(bigVal.Uint64()))
	}

	return result, nil
}

// splitPath splits a "/"-prefixed path string ("/44'/0'/0'") into its raw
// components, reporting whether a terminal wildcard ("/*" or "/*'") was
// present and stripped.
func splitPath(pathStr string) (components []string, wildcard, wildcardHardened bool, err error) {
	pathStr = strings.TrimPrefix(pathStr, "/")
	if pathStr == "" {
		return nil, false, false, nil
	}

	parts := strings.Split(pathStr, "/")
	last := parts[len(parts)-1]
	switch last {
	case "*":
		wildcard = true
		parts = parts[:len(parts)-1]
	case "*'", "*h":
		wildcard, wildcardHardened = true, true
		parts = parts[:len(parts)-1]
	}

	return parts, wildcard, wildcardHardened, nil
}
