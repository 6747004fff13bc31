package replay

import "github.com/suisim/sandbox/bcs"

// reconstructVersionMap unions the three effects-derived sources plus
// the transaction's own declared input versions into one
// address->version table (spec.md §4.9 step 1). Where sources
// disagree — which shouldn't happen for a consistent archive, but a
// replayed transaction is an untrusted input — the higher version
// wins, since the historical version map's purpose is "the most
// advanced state any input could have been read at", not an
// assertion of internal consistency.
func reconstructVersionMap(tx TxRecord) map[bcs.Address]uint64 {
	out := make(map[bcs.Address]uint64)
	merge := func(m map[bcs.Address]uint64) {
		for id, v := range m {
			if cur, ok := out[id]; !ok || v > cur {
				out[id] = v
			}
		}
	}
	merge(tx.UnchangedLoadedRuntimeObjects)
	merge(tx.UnchangedConsensusObjects)
	merge(tx.ChangedObjects)
	merge(tx.DeclaredInputVersions)
	return out
}
