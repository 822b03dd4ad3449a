package descriptor

import "github.com/btcsuite/btclog"

var log btclog.Logger = btclog.Disabled

// UseLogger sets the logger this package reports PSBT-construction warnings
// through (an omitted txHex on UpdatePsbtAsInput, for instance). The default
// discards everything.
func UseLogger(logger btclog.Logger) {
	log = logger
}
