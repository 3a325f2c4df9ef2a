// Package snapshot implements canonical state export, import, and replay
// comparison (C18): turning whatever canon.Object the engine assembles
// into the deterministic wire format from internal/canon, checking
// schema-version compatibility on load, and byte-comparing two
// re-encoded snapshots to verify replay determinism (P6).
package snapshot

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/aether3d/evidence-core/internal/canon"
	"github.com/aether3d/evidence-core/internal/domain"
)

// compareTolerance is the numeric slack CompareSnapshots allows once it
// falls back to a decoded comparison (spec §4.18): globals and per-patch
// evidence need only agree within this bound, since values that crossed a
// canon.Encode round-trip on different platforms can differ by a few ULPs
// without signaling a real divergence.
const compareTolerance = 1e-6

// CurrentSchemaVersion is embedded in every exported snapshot under the
// "schemaVersion" key.
const CurrentSchemaVersion = "1.0"

// Export canonically encodes state (an engine-assembled canon.Object)
// into its wire bytes.
func Export(state canon.Object) ([]byte, error) {
	data, err := canon.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerializationFailed, err)
	}
	return data, nil
}

// Load decodes wire bytes back into a canon.Object and checks that its
// schemaVersion field is major-version compatible with
// CurrentSchemaVersion. A minor-version mismatch is accepted — newer
// minor versions only add fields, per the additive-only schema-evolution
// rule — but a major-version mismatch is refused since field meanings
// may have changed incompatibly.
//
// Loading a snapshot produced with fewer tracked patches than the
// engine's current ledger (a "partial" restore) is accepted by design:
// patches absent from the snapshot are simply left at their pre-load
// state rather than treated as an error, since a deliberately trimmed
// snapshot (after pruning) is a normal, supported input.
func Load(data []byte) (canon.Object, error) {
	decoded, err := canon.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeserializationFailed, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an object", domain.ErrDeserializationFailed)
	}

	rawVersion, _ := canon.String(obj["schemaVersion"])
	if rawVersion == "" {
		return nil, &domain.SchemaVersionError{Expected: CurrentSchemaVersion, Found: "(missing)"}
	}
	if err := checkCompatible(rawVersion); err != nil {
		return nil, err
	}

	out := make(canon.Object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out, nil
}

func checkCompatible(found string) error {
	foundMajor, err := majorOf(found)
	if err != nil {
		return &domain.SchemaVersionError{Expected: CurrentSchemaVersion, Found: found}
	}
	expectedMajor, _ := majorOf(CurrentSchemaVersion)
	if foundMajor != expectedMajor {
		return &domain.SchemaVersionError{Expected: CurrentSchemaVersion, Found: found}
	}
	return nil
}

func majorOf(version string) (int, error) {
	parts := strings.SplitN(version, ".", 2)
	return strconv.Atoi(parts[0])
}

// CompareSnapshots reports whether two encoded snapshots match under the
// replay-comparison contract (§4.18): byte-equal bytes are an immediate
// success; otherwise both are decoded and compared field by field, with
// numeric leaves (globals and per-patch evidence alike) allowed to differ
// by up to compareTolerance rather than requiring exact equality.
func CompareSnapshots(a, b []byte) (bool, error) {
	if bytes.Equal(a, b) {
		return true, nil
	}

	da, err := canon.Decode(a)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrDeserializationFailed, err)
	}
	db, err := canon.Decode(b)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrDeserializationFailed, err)
	}

	return treesMatch(da, db), nil
}

// treesMatch recursively compares two canon.Decode trees. Numbers compare
// within compareTolerance; every other shape (object keys, array length
// and order, strings, bools, nulls) must match exactly.
func treesMatch(a, b any) bool {
	an, aIsNum := canon.Float64(a)
	bn, bIsNum := canon.Float64(b)
	if aIsNum || bIsNum {
		if !aIsNum || !bIsNum {
			return false
		}
		diff := an - bn
		return diff < compareTolerance && diff > -compareTolerance
	}

	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !treesMatch(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !treesMatch(at[i], bt[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
