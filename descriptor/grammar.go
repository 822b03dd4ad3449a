package descriptor

import "regexp"

// shell enumerates the descriptor outer forms spec.md §4.2 recognizes.
// Order matters: it is also the dispatch order expand() tries shells in,
// which resolves the sh(wpkh(...)) vs. sh(<MS>)-whitelist ambiguity the
// way spec.md's Open Questions call for — the dedicated branch is matched
// first.
type shell int

const (
	shellUnknown shell = iota
	shellAddr
	shellPK
	shellPKH
	shellWPKH
	shellShWpkh
	shellShWsh
	shellWsh
	shellSh
)

var (
	reAddr    = regexp.MustCompile(`^addr\((.+)\)$`)
	rePK      = regexp.MustCompile(`^pk\((.+)\)$`)
	rePKH     = regexp.MustCompile(`^pkh\((.+)\)$`)
	reWPKH    = regexp.MustCompile(`^wpkh\((.+)\)$`)
	reShWpkh  = regexp.MustCompile(`^sh\(wpkh\((.+)\)\)$`)
	reShWsh   = regexp.MustCompile(`^sh\(wsh\((.+)\)\)$`)
	reWsh     = regexp.MustCompile(`^wsh\((.+)\)$`)
	reSh      = regexp.MustCompile(`^sh\((.+)\)$`)
)

// miniscriptP2SHWhitelist lists the fragment heads allowed to appear
// directly inside sh(...) when allowMiniscriptInP2SH is false, per
// spec.md §4.2.
var miniscriptP2SHWhitelist = []string{
	"pk(", "pkh(", "wpkh(", "combo(", "multi(", "sortedmulti(", "multi_a(", "sortedmulti_a(",
}

// classify determines which shell a checksum-stripped, index-substituted
// descriptor body matches and returns its inner expression. Shells are
// tried in the fixed dispatch order above.
func classify(body string) (shell shell, inner string) {
	if m := reAddr.FindStringSubmatch(body); m != nil {
		return shellAddr, m[1]
	}
	if m := reShWpkh.FindStringSubmatch(body); m != nil {
		return shellShWpkh, m[1]
	}
	if m := reShWsh.FindStringSubmatch(body); m != nil {
		return shellShWsh, m[1]
	}
	if m := reWPKH.FindStringSubmatch(body); m != nil {
		return shellWPKH, m[1]
	}
	if m := reWsh.FindStringSubmatch(body); m != nil {
		return shellWsh, m[1]
	}
	if m := rePKH.FindStringSubmatch(body); m != nil {
		return shellPKH, m[1]
	}
	if m := rePK.FindStringSubmatch(body); m != nil {
		return shellPK, m[1]
	}
	if m := reSh.FindStringSubmatch(body); m != nil {
		return shellSh, m[1]
	}
	return shellUnknown, ""
}

// allowedAsP2SHMiniscript reports whether inner may be compiled as a
// miniscript directly inside sh(...) without allowMiniscriptInP2SH.
func allowedAsP2SHMiniscript(inner string) bool {
	for _, head := range miniscriptP2SHWhitelist {
		if len(inner) >= len(head) && inner[:len(head)] == head {
			return true
		}
	}
	return false
}
