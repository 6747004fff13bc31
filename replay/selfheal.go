package replay

import "github.com/suisim/sandbox/bcs"

// selfHealField is the last-resort dynamic-field lookup: a raw
// BCS-content match across parent's children regardless of declared
// name type (spec.md §4.9's "Known Limitations: Dynamic Field
// Traversal" — a skip-list or similar structure that computes its
// next lookup key at runtime, rather than naming it in the
// transaction, can't be pre-fetched; this is the only avenue left
// once execution is already mid-traversal). It is only trusted when
// the provider reports a single unambiguous match.
func (d *Driver) selfHealField(parent bcs.Address, child bcs.Address, keyBytes []byte) (DynamicFieldRecord, bool) {
	rec, ok, err := d.Provider.FindDynamicFieldByBCS(parent, keyBytes, d.Checkpoint, selfHealScanLimit)
	if err != nil || !ok {
		return DynamicFieldRecord{}, false
	}
	d.log.Infow("replay: self-healed dynamic field via BCS match", "parent", parent.String(), "child", child.String())
	d.Env.Store.RestoreDynamicField(parent, child, rec.ValueType, rec.Value)
	return rec, true
}

// selfHealScanLimit bounds how many of a parent's children the
// archive is allowed to consider before FindDynamicFieldByBCS gives up
// on finding a unique match.
const selfHealScanLimit = 8

// synthesizeStub fills in a value the archive knows the type of but
// couldn't return bytes for, preserving child in the value's UID slot
// so later borrows see a UID consistent with the object's own address
// (spec.md §4.9 step 6 self-heal policy).
func (d *Driver) synthesizeStub(parent, child bcs.Address, valueType bcs.TypeTag) ([]byte, bool) {
	result, err := d.Env.Synth.Synthesize(valueType)
	if err != nil {
		d.log.Warnw("replay: self-heal synthesis failed", "parent", parent.String(), "child", child.String(), "type", valueType.String(), "error", err)
		return nil, false
	}
	out := result.Bytes
	if len(out) >= bcs.AddressLength {
		copy(out[:bcs.AddressLength], child[:])
	}
	d.log.Infow("replay: self-healed dynamic field via synthesis", "parent", parent.String(), "child", child.String(), "type", valueType.String(), "is_stub", result.IsStub)
	return out, true
}
