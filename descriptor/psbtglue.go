package descriptor

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdescriptors/descriptor/ecc"
	"github.com/btcdescriptors/descriptor/mscompile"
)

// AppendInputOptions identifies the previous output this Output is
// spending, for UpdatePsbtAsInput.
type AppendInputOptions struct {
	// TxID is the previous transaction's id, big-endian hex as displayed
	// by block explorers and RPC.
	TxID string
	Vout uint32

	// TxHex is the full serialized previous transaction. Recording it is
	// BIP174's recommended practice; omitting it only logs a warning, not
	// an error — the resulting PSBT loses its fee-tampering defense for
	// this input.
	TxHex string

	// Value is the previous output's value in satoshis. Required when
	// TxHex is omitted.
	Value int64
}

// Finalizer finalizes the PSBT input UpdatePsbtAsInput appended, once real
// signatures have been attached to it.
type Finalizer func(pkt *psbt.Packet, validate bool) error

// UpdatePsbtAsInput appends this Output's UTXO as a new input on pkt and
// attaches its redeem/witness scripts and key derivations, per spec.md
// §4.6. Returns a Finalizer bound to the index this input was assigned.
func (o *Output) UpdatePsbtAsInput(pkt *psbt.Packet, opts AppendInputOptions) (Finalizer, error) {
	if err := o.requirePayment(); err != nil {
		return nil, err
	}
	if !o.expansion.HasIsSegwit {
		return nil, newError(UnknownSegwit, o.source, fmt.Errorf("addr()-only instance: segwit-ness is indeterminate"))
	}

	txHash, err := chainhash.NewHashFromStr(opts.TxID)
	if err != nil {
		return nil, newError(InvalidDescriptor, o.source, fmt.Errorf("parsing txid: %w", err))
	}

	sequence, err := o.expectedSequence()
	if err != nil {
		return nil, err
	}

	outPoint := wire.NewOutPoint(txHash, opts.Vout)
	txIn := wire.NewTxIn(outPoint, nil, nil)
	txIn.Sequence = sequence
	pkt.UnsignedTx.TxIn = append(pkt.UnsignedTx.TxIn, txIn)
	pkt.Inputs = append(pkt.Inputs, psbt.PInput{})
	index := len(pkt.UnsignedTx.TxIn) - 1

	input := &pkt.Inputs[index]
	if opts.TxHex != "" {
		raw, err := hex.DecodeString(opts.TxHex)
		if err != nil {
			return nil, newError(InvalidDescriptor, o.source, fmt.Errorf("decoding txHex: %w", err))
		}
		var prevTx wire.MsgTx
		if err := prevTx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, newError(InvalidDescriptor, o.source, fmt.Errorf("deserializing txHex: %w", err))
		}
		input.NonWitnessUtxo = &prevTx
		if o.expansion.IsSegwit {
			if int(opts.Vout) >= len(prevTx.TxOut) {
				return nil, newError(InvalidDescriptor, o.source, fmt.Errorf("txHex has no output %d", opts.Vout))
			}
			input.WitnessUtxo = prevTx.TxOut[opts.Vout]
		}
	} else {
		log.Warnf("UpdatePsbtAsInput: txHex omitted for input %d; falling back to a value-only witnessUtxo", index)
		input.WitnessUtxo = &wire.TxOut{Value: opts.Value, PkScript: o.expansion.Payment.Script}
	}

	if err := o.attachScriptsAndDerivations(pkt, index, true); err != nil {
		return nil, err
	}

	return func(p *psbt.Packet, validate bool) error {
		return o.FinalizePsbtInput(p, index, validate)
	}, nil
}

// UpdatePsbtAsOutput appends this Output as a new PSBT output paying value
// satoshis, attaching its redeem/witness scripts and key derivations.
func (o *Output) UpdatePsbtAsOutput(pkt *psbt.Packet, value int64) error {
	if err := o.requirePayment(); err != nil {
		return err
	}

	pkt.UnsignedTx.TxOut = append(pkt.UnsignedTx.TxOut, wire.NewTxOut(value, o.expansion.Payment.Script))
	pkt.Outputs = append(pkt.Outputs, psbt.POutput{})
	index := len(pkt.UnsignedTx.TxOut) - 1

	return o.attachScriptsAndDerivations(pkt, index, false)
}

func (o *Output) attachScriptsAndDerivations(pkt *psbt.Packet, index int, isInput bool) error {
	updater, err := psbt.NewUpdater(pkt)
	if err != nil {
		return newError(InvalidDescriptor, o.source, err)
	}

	addDerivation := func(fp uint32, path []uint32, pub []byte) error {
		if isInput {
			return updater.AddInBip32Derivation(fp, path, pub, index)
		}
		return updater.AddOutBip32Derivation(fp, path, pub, index)
	}

	if o.expansion.HasRedeemScript {
		var err error
		if isInput {
			err = updater.AddInRedeemScript(o.expansion.RedeemScript, index)
		} else {
			err = updater.AddOutRedeemScript(o.expansion.RedeemScript, index)
		}
		if err != nil {
			return newError(InvalidDescriptor, o.source, err)
		}
	}
	if o.expansion.HasWitnessScript {
		var err error
		if isInput {
			err = updater.AddInWitnessScript(o.expansion.WitnessScript, index)
		} else {
			err = updater.AddOutWitnessScript(o.expansion.WitnessScript, index)
		}
		if err != nil {
			return newError(InvalidDescriptor, o.source, err)
		}
	}

	return addBip32Derivations(o.expansion, addDerivation)
}

func addBip32Derivations(exp *Expansion, add func(fingerprint uint32, path []uint32, pubkey []byte) error) error {
	if !exp.HasExpansionMap {
		return nil
	}
	for _, placeholder := range exp.ExpansionMap.Order {
		info := exp.ExpansionMap.Get(placeholder)
		if info == nil || info.Pubkey == nil {
			continue
		}
		fp, ok := info.MasterFingerprint()
		if !ok {
			continue
		}
		if err := add(fp, info.FullDerivationPath(), info.Pubkey); err != nil {
			return err
		}
	}
	return nil
}

// assertInputShape implements spec.md §4.7: the input's declared
// scriptPubKey, sequence, locktime, witnessScript and redeemScript must all
// match what this Output expects.
func (o *Output) assertInputShape(pkt *psbt.Packet, index int) error {
	if index < 0 || index >= len(pkt.Inputs) {
		return newError(InputShapeMismatch, o.source, fmt.Errorf("input index %d out of range", index))
	}

	input := &pkt.Inputs[index]
	txIn := pkt.UnsignedTx.TxIn[index]

	var actualScriptPubKey []byte
	switch {
	case input.WitnessUtxo != nil:
		actualScriptPubKey = input.WitnessUtxo.PkScript
	case input.NonWitnessUtxo != nil:
		vout := txIn.PreviousOutPoint.Index
		if int(vout) >= len(input.NonWitnessUtxo.TxOut) {
			return newError(InputShapeMismatch, o.source, fmt.Errorf("nonWitnessUtxo has no output %d", vout))
		}
		actualScriptPubKey = input.NonWitnessUtxo.TxOut[vout].PkScript
	default:
		return newError(InputShapeMismatch, o.source, errors.New("input has neither a witness nor a non-witness utxo"))
	}

	if !bytes.Equal(actualScriptPubKey, o.expansion.Payment.Script) {
		return newError(InputShapeMismatch, o.source, fmt.Errorf("input scriptPubKey does not match this descriptor"))
	}
	if o.expansion.HasWitnessScript && !bytes.Equal(input.WitnessScript, o.expansion.WitnessScript) {
		return newError(InputShapeMismatch, o.source, fmt.Errorf("input witnessScript does not match this descriptor"))
	}
	if o.expansion.HasRedeemScript && !bytes.Equal(input.RedeemScript, o.expansion.RedeemScript) {
		return newError(InputShapeMismatch, o.source, fmt.Errorf("input redeemScript does not match this descriptor"))
	}

	expectedSeq, err := o.expectedSequence()
	if err != nil {
		return err
	}
	if txIn.Sequence != expectedSeq {
		return newError(InputShapeMismatch, o.source, fmt.Errorf("input sequence %d does not match the expected %d", txIn.Sequence, expectedSeq))
	}

	lockTime, err := o.GetLockTime()
	if err != nil {
		return err
	}
	if pkt.UnsignedTx.LockTime != lockTime {
		return newError(InputShapeMismatch, o.source, fmt.Errorf("psbt locktime %d does not match the expected %d", pkt.UnsignedTx.LockTime, lockTime))
	}

	return nil
}

// expectedSequence implements spec.md §4.7's sequence fallback: the
// miniscript's own nSequence requirement if it has one, else 0xfffffffe when
// an nLockTime requirement exists (so it isn't disabled), else 0xffffffff.
func (o *Output) expectedSequence() (uint32, error) {
	seq, err := o.GetSequence()
	if err != nil {
		return 0, err
	}
	if seq != 0 {
		return seq, nil
	}
	lockTime, err := o.GetLockTime()
	if err != nil {
		return 0, err
	}
	if lockTime != 0 {
		return 0xfffffffe, nil
	}
	return 0xffffffff, nil
}

// FinalizePsbtInput implements spec.md §4.6/§4.7: assert the input still
// matches this Output, optionally validate its partial signatures against
// the ecc backend, then install a satisfying final scriptSig/witness.
func (o *Output) FinalizePsbtInput(pkt *psbt.Packet, index int, validate bool) error {
	if err := o.requirePayment(); err != nil {
		return err
	}
	if err := o.assertInputShape(pkt, index); err != nil {
		return err
	}

	input := &pkt.Inputs[index]
	if len(input.PartialSigs) == 0 {
		return newError(MissingSignatures, o.source, fmt.Errorf("input %d has no partial signatures", index))
	}

	if validate {
		if err := validatePartialSigs(pkt, index, o.expansion); err != nil {
			return newError(InvalidSignatures, o.source, err)
		}
	}

	signatures := make(map[string][]byte, len(input.PartialSigs))
	for _, sig := range input.PartialSigs {
		signatures[hex.EncodeToString(sig.PubKey)] = sig.Signature
	}

	if o.expansion.HasMiniscript {
		sat, err := o.GetScriptSatisfaction(signatures)
		if err != nil {
			return err
		}
		finalizeMiniscriptInput(input, o.expansion, sat)
	} else if err := psbt.Finalize(pkt, index); err != nil {
		return newError(InvalidDescriptor, o.source, fmt.Errorf("delegating to the PSBT library's default finalizer: %w", err))
	}

	input.PartialSigs = nil
	input.SighashType = 0
	return nil
}

// validatePartialSigs verifies every partial signature on pkt's input at
// index against the ecc backend, using the scriptCode appropriate to this
// Output's shell (witnessScript, redeemScript or the bare scriptPubKey).
func validatePartialSigs(pkt *psbt.Packet, index int, exp *Expansion) error {
	input := &pkt.Inputs[index]

	var scriptCode []byte
	switch {
	case exp.HasWitnessScript:
		scriptCode = exp.WitnessScript
	case exp.HasRedeemScript:
		scriptCode = exp.RedeemScript
	default:
		scriptCode = exp.Payment.Script
	}

	fetcher, err := prevOutputFetcher(pkt)
	if err != nil {
		return err
	}

	for _, sig := range input.PartialSigs {
		sighashType := txscript.SigHashAll
		if input.SighashType != 0 {
			sighashType = input.SighashType
		}

		var hash []byte
		if exp.IsSegwit {
			prevOut := fetcher.FetchPrevOutput(pkt.UnsignedTx.TxIn[index].PreviousOutPoint)
			sigHashes := txscript.NewTxSigHashes(pkt.UnsignedTx, fetcher)
			hash, err = txscript.CalcWitnessSigHash(scriptCode, sigHashes, sighashType, pkt.UnsignedTx, index, prevOut.Value)
		} else {
			hash, err = txscript.CalcSignatureHash(scriptCode, sighashType, pkt.UnsignedTx, index)
		}
		if err != nil {
			return fmt.Errorf("computing signature hash: %w", err)
		}

		if !ecc.Default.Verify(sig.PubKey, hash, sig.Signature) {
			return fmt.Errorf("signature for pubkey %x does not verify", sig.PubKey)
		}
	}

	return nil
}

func prevOutputFetcher(pkt *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range pkt.UnsignedTx.TxIn {
		input := pkt.Inputs[i]
		var txOut *wire.TxOut
		switch {
		case input.WitnessUtxo != nil:
			txOut = input.WitnessUtxo
		case input.NonWitnessUtxo != nil:
			vout := txIn.PreviousOutPoint.Index
			if int(vout) >= len(input.NonWitnessUtxo.TxOut) {
				return nil, fmt.Errorf("nonWitnessUtxo has no output %d", vout)
			}
			txOut = input.NonWitnessUtxo.TxOut[vout]
		default:
			continue
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, txOut)
	}
	return fetcher, nil
}

func finalizeMiniscriptInput(input *psbt.PInput, exp *Expansion, sat *mscompile.Satisfaction) {
	switch {
	case exp.IsSegwit && exp.HasRedeemScript:
		witness := append(append([][]byte{}, sat.Witness...), exp.WitnessScript)
		input.FinalScriptWitness = serializeWitness(witness)
		input.FinalScriptSig = pushOnlyScript(exp.RedeemScript)
	case exp.IsSegwit:
		witness := append(append([][]byte{}, sat.Witness...), exp.WitnessScript)
		input.FinalScriptWitness = serializeWitness(witness)
	default:
		input.FinalScriptSig = scriptSigWithRedeemScript(sat.Witness, exp.RedeemScript)
	}
}

func scriptSigWithRedeemScript(items [][]byte, redeemScript []byte) []byte {
	builder := txscript.NewScriptBuilder()
	for _, item := range items {
		builder.AddData(item)
	}
	builder.AddData(redeemScript)
	script, _ := builder.Script()
	return script
}

func pushOnlyScript(data []byte) []byte {
	script, _ := txscript.NewScriptBuilder().AddData(data).Script()
	return script
}

// serializeWitness encodes a witness stack in the wire format PSBT's
// FinalScriptWitness field carries, matching wire.MsgTx's own witness
// serialization.
func serializeWitness(witness [][]byte) []byte {
	var buf bytes.Buffer
	wire.WriteVarInt(&buf, 0, uint64(len(witness)))
	for _, item := range witness {
		wire.WriteVarBytes(&buf, 0, item)
	}
	return buf.Bytes()
}
