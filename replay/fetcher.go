package replay

import (
	"encoding/base64"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/vm"
)

// missCacheSize bounds the backoff cache's memory footprint; a replay
// session touching more distinct (parent,child) pairs than this just
// evicts its oldest entries and re-learns their backoff from scratch,
// which only costs an extra archive round-trip.
const missCacheSize = 4096

// backoffLevels is the exponential-backoff ladder a repeatedly-missing
// key climbs (spec.md §5: "base 250ms, 4 levels").
var backoffLevels = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

type missKey struct {
	parent  bcs.Address
	child   bcs.Address
	keyType string
	keyB64  string
}

type missEntry struct {
	level       int
	nextAttempt time.Time
}

// missCache tracks recently-missed fetches so a PTB that repeatedly
// probes the same absent dynamic field (a skip-list traversal probing
// computed tick indices, say) doesn't hammer the archive once per
// probe.
type missCache struct {
	cache *lru.Cache[missKey, missEntry]
}

func newMissCache() *missCache {
	c, _ := lru.New[missKey, missEntry](missCacheSize)
	return &missCache{cache: c}
}

func (m *missCache) allowed(key missKey) bool {
	e, ok := m.cache.Get(key)
	if !ok {
		return true
	}
	return !time.Now().Before(e.nextAttempt)
}

func (m *missCache) recordMiss(key missKey) {
	e, seen := m.cache.Get(key)
	level := 0
	if seen {
		level = e.level
		if level < len(backoffLevels)-1 {
			level++
		}
	}
	m.cache.Add(key, missEntry{level: level, nextAttempt: time.Now().Add(backoffLevels[level])})
}

func (m *missCache) recordHit(key missKey) {
	m.cache.Remove(key)
}

func plainKey(parent, child bcs.Address) missKey {
	return missKey{parent: parent, child: child}
}

func namedKey(parent, child bcs.Address, keyType bcs.TypeTag, keyBytes []byte) missKey {
	return missKey{parent: parent, child: child, keyType: keyType.String(), keyB64: base64.StdEncoding.EncodeToString(keyBytes)}
}

// fetchObjectWithFallback resolves id through the exact-version
// archival fetch→checkpoint fallback→latest fallback chain (spec.md
// §4.9 step 4 / §5).
func (d *Driver) fetchObjectWithFallback(id bcs.Address) (ObjectRecord, bool, error) {
	if v, ok := d.versionMap[id]; ok {
		rec, ok, err := d.Provider.FetchObjectAtVersion(id, v)
		if err != nil {
			return ObjectRecord{}, false, err
		}
		if ok {
			return rec, true, nil
		}
	}
	if d.Checkpoint != nil {
		rec, ok, err := d.Provider.FetchObjectAtCheckpoint(id, *d.Checkpoint)
		if err != nil {
			return ObjectRecord{}, false, err
		}
		if ok {
			return rec, true, nil
		}
	}
	return d.Provider.FetchObject(id)
}

// candidateKeyTypes enumerates the name types a dynamic-field lookup
// should try besides the one the runtime asked for: the vector<u8> /
// 0x1::string::String symmetry spec.md §4.9 names explicitly (both
// name types share the same key bytes, so the archive is asked under
// each in turn with those bytes).
func candidateKeyTypes(kt bcs.TypeTag) []bcs.TypeTag {
	out := []bcs.TypeTag{kt}
	switch {
	case kt.Kind == bcs.KindVector && kt.Elem != nil && kt.Elem.Kind == bcs.KindU8:
		out = append(out, bcs.Struct(bcs.StructTag{Address: bcs.FrameworkStd, Module: "string", Name: "String"}))
	case kt.Kind == bcs.KindStruct && kt.Struct.Module == "string" && kt.Struct.Name == "String":
		out = append(out, bcs.Vector(bcs.Primitive(bcs.KindU8)))
	}
	return out
}

// fetchChildByKey tries every candidate name type for (parent,
// keyBytes) in turn, returning the first hit.
func (d *Driver) fetchChildByKey(parent bcs.Address, keyType bcs.TypeTag, keyBytes []byte) (DynamicFieldRecord, bool, error) {
	for _, kt := range candidateKeyTypes(keyType) {
		rec, ok, err := d.Provider.FetchDynamicFieldByName(parent, kt, keyBytes)
		if err != nil {
			return DynamicFieldRecord{}, false, err
		}
		if ok {
			return rec, true, nil
		}
	}
	return DynamicFieldRecord{}, false, nil
}

// buildRuntimeFactory wires a fresh vm.ObjectRuntime whose fetchers
// fall through to the archive on a local store miss, and caches every
// successful fetch straight into the Environment's store so a later
// command (or a later replayed transaction sharing the same
// Environment) sees it without another round-trip.
func (d *Driver) buildRuntimeFactory() func() *vm.ObjectRuntime {
	return func() *vm.ObjectRuntime {
		rt := vm.NewObjectRuntime()

		rt.WithVersionedFetcher(func(parent, child bcs.Address) (bcs.TypeTag, []byte, uint64, bool) {
			if entry, ok := d.Env.Store.GetDynamicField(parent, child); ok {
				return entry.Type, entry.Value, 0, true
			}
			key := plainKey(parent, child)
			if !d.missCache.allowed(key) {
				return bcs.TypeTag{}, nil, 0, false
			}
			rec, ok, err := d.fetchObjectWithFallback(child)
			if err != nil || !ok {
				d.missCache.recordMiss(key)
				d.Env.RecordReplayMiss()
				if err != nil {
					d.log.Warnw("replay: child object fetch failed", "parent", parent.String(), "child", child.String(), "error", err)
				}
				return bcs.TypeTag{}, nil, 0, false
			}
			d.missCache.recordHit(key)
			d.Env.Store.RestoreDynamicField(parent, child, rec.TypeTag, rec.BCSBytes)
			return rec.TypeTag, rec.BCSBytes, rec.Version, true
		})

		rt.WithKeyBasedFetcher(func(parent, child bcs.Address, keyType bcs.TypeTag, keyBytes []byte) (bcs.TypeTag, []byte, bool) {
			key := namedKey(parent, child, keyType, keyBytes)
			if !d.missCache.allowed(key) {
				return bcs.TypeTag{}, nil, false
			}
			rec, ok, err := d.fetchChildByKey(parent, keyType, keyBytes)
			if err != nil {
				d.log.Warnw("replay: keyed dynamic-field fetch failed", "parent", parent.String(), "error", err)
			}

			// The archive knows the field exists and its value type,
			// but couldn't return its bytes (a pruned/unindexed wrapper,
			// say). Self-heal by synthesizing a stand-in value.
			if ok && len(rec.Value) == 0 && d.SelfHeal {
				if stub, healed := d.synthesizeStub(parent, child, rec.ValueType); healed {
					d.missCache.recordHit(key)
					d.Env.Store.RestoreDynamicField(parent, child, rec.ValueType, stub)
					return rec.ValueType, stub, true
				}
			}
			if ok {
				d.missCache.recordHit(key)
				d.Env.Store.RestoreDynamicField(parent, child, rec.ValueType, rec.Value)
				return rec.ValueType, rec.Value, true
			}

			// No record under any candidate name type at all — try a
			// raw BCS-content match across the parent's children (a
			// computed, never-declared key, e.g. a skip-list tick
			// index derived at runtime).
			if d.SelfHeal {
				if healed, ok := d.selfHealField(parent, child, keyBytes); ok {
					d.missCache.recordHit(key)
					return healed.ValueType, healed.Value, true
				}
			}
			d.missCache.recordMiss(key)
			d.Env.RecordReplayMiss()
			return bcs.TypeTag{}, nil, false
		})

		return rt
	}
}
