package descriptor_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcdescriptors/descriptor"
	"github.com/btcdescriptors/descriptor/mscompile"
)

// generatorPubKey is secp256k1's generator point G, compressed. Used as a
// stand-in signer everywhere a syntactically valid pubkey is needed but its
// specific value doesn't matter to the test.
const generatorPubKey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

const masterXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

func TestPKHDescriptorResolvesScriptPubKey(t *testing.T) {
	out, err := descriptor.New("pkh(" + generatorPubKey + ")#e48zzw02")
	require.NoError(t, err)

	script, err := out.GetScriptPubKey()
	require.NoError(t, err)
	assert.Equal(t, "76a914751e76e8199196d454941c45d1b3a323f1433bd688ac", hex.EncodeToString(script))
	assert.False(t, out.IsSegwit())
}

func TestRangedDescriptorDiffersByIndex(t *testing.T) {
	out, err := descriptor.New("wpkh(" + masterXpub + "/0/*)#wvk84d79")
	require.NoError(t, err)

	_, err = out.GetScriptPubKey()
	assert.Error(t, err, "a ranged descriptor has no payment before AtIndex")

	at0, err := out.AtIndex(0)
	require.NoError(t, err)
	script0, err := at0.GetScriptPubKey()
	require.NoError(t, err)

	at1, err := out.AtIndex(1)
	require.NoError(t, err)
	script1, err := at1.GetScriptPubKey()
	require.NoError(t, err)

	assert.NotEqual(t, script0, script1)
	assert.True(t, at0.IsSegwit())
}

func TestShWpkhRedeemScriptIsTheWitnessProgram(t *testing.T) {
	out, err := descriptor.New("sh(wpkh(" + generatorPubKey + "))#jqtwwlah")
	require.NoError(t, err)

	redeem := out.GetRedeemScript()
	require.NotNil(t, redeem)
	assert.Equal(t, "0014751e76e8199196d454941c45d1b3a323f1433bd6", hex.EncodeToString(redeem))

	script, err := out.GetScriptPubKey()
	require.NoError(t, err)
	assert.Equal(t, "a914bcfeb728b584253d5f3f70bcb780e9ef218a68f487", hex.EncodeToString(script))
	assert.True(t, out.IsSegwit())
}

// olderSatisfier always resolves the older(144) branch of the wsh miniscript
// below, whether it's asked for a fake-signature time-constraint probe or a
// real satisfaction. The test below only drives the fake-signature probe.
type olderSatisfier struct{}

func (olderSatisfier) Satisfy(req mscompile.Request) (*mscompile.Satisfaction, error) {
	sig, _ := req.Signatures(nil)
	witness := [][]byte{make([]byte, 64)}
	if sig != nil {
		witness = [][]byte{sig}
	}
	return &mscompile.Satisfaction{Witness: witness, Sequence: 144}, nil
}

func TestMiniscriptOlderImpliesSequence(t *testing.T) {
	body := "wsh(and_v(v:pk(" + generatorPubKey + "),older(144)))#g8lfk20s"
	out, err := descriptor.New(body, descriptor.WithSatisfier(olderSatisfier{}))
	require.NoError(t, err)

	sequence, err := out.GetSequence()
	require.NoError(t, err)
	assert.EqualValues(t, 144, sequence)

	lockTime, err := out.GetLockTime()
	require.NoError(t, err)
	assert.Zero(t, lockTime)
}

func TestBadChecksumIsRejected(t *testing.T) {
	_, err := descriptor.New("pkh(" + generatorPubKey + ")#deadbeef")
	require.Error(t, err)
	kind, ok := descriptor.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, descriptor.BadChecksum, kind)
}

func TestAddrDescriptorHasNoSegwitOpinionAndSingletonSigners(t *testing.T) {
	out, err := descriptor.New("addr(bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4)#uyjndxcw")
	require.NoError(t, err)

	assert.False(t, out.IsSegwit())

	script, err := out.GetScriptPubKey()
	require.NoError(t, err)

	signers, err := out.GetSignersPubKeys()
	require.NoError(t, err)
	require.Len(t, signers, 1)
	assert.Equal(t, script, signers[0])
}

func TestAddrDescriptorRejectsUpdatePsbtAsInput(t *testing.T) {
	out, err := descriptor.New("addr(bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4)#uyjndxcw")
	require.NoError(t, err)

	pkt := &psbt.Packet{UnsignedTx: wire.NewMsgTx(2)}
	_, err = out.UpdatePsbtAsInput(pkt, descriptor.AppendInputOptions{
		TxID:  "0000000000000000000000000000000000000000000000000000000000000001",
		Vout:  0,
		Value: 100000,
	})
	require.Error(t, err)
	kind, ok := descriptor.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, descriptor.UnknownSegwit, kind)
}

func TestUpdatePsbtAsOutputAppends(t *testing.T) {
	out, err := descriptor.New("wpkh(" + generatorPubKey + ")#ucxz0gak")
	require.NoError(t, err)

	pkt := &psbt.Packet{UnsignedTx: wire.NewMsgTx(2)}
	require.NoError(t, out.UpdatePsbtAsOutput(pkt, 50000))

	require.Len(t, pkt.UnsignedTx.TxOut, 1)
	require.Len(t, pkt.Outputs, 1)
	assert.EqualValues(t, 50000, pkt.UnsignedTx.TxOut[0].Value)

	script, err := out.GetScriptPubKey()
	require.NoError(t, err)
	assert.Equal(t, script, pkt.UnsignedTx.TxOut[0].PkScript)
}
