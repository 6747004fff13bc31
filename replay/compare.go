package replay

import (
	"fmt"

	"github.com/suisim/sandbox/ptb"
)

// ComparePolicy tunes how strictly a replayed PTB's effects are held
// to the recorded on-chain ones.
type ComparePolicy int

const (
	// Strict requires exact created/mutated/deleted object-count
	// agreement; wrapped and unwrapped counts are not compared.
	Strict ComparePolicy = iota
	// DynamicFields tolerates the same object-count slack a mutated
	// dynamic field or its wrapper introduces (this simulator doesn't
	// track a gas object, so a gas-only mutation is the one other
	// source of count drift the original tool had to special-case;
	// here it folds into the same small allowed delta).
	DynamicFields
)

// EffectsComparison is the outcome of checking one replayed PTB
// against its recorded historical effects (spec.md §4.9 step 6).
type EffectsComparison struct {
	StatusMatch        bool
	CreatedCountMatch  bool
	MutatedCountMatch  bool
	DeletedCountMatch  bool
	MatchScore         float64
	Notes              []string
}

// compareEffects scores a local TransactionEffects against the
// recorded historical summary. Ported from the original tool's
// on-chain/local comparison: four equally-weighted checkpoints
// (status, created/mutated/deleted counts), with a policy-controlled
// tolerance on the mutated count.
func compareEffects(recorded *RecordedEffects, local *ptb.TransactionEffects, policy ComparePolicy) EffectsComparison {
	var notes []string
	points := 0.0
	const total = 4.0

	statusMatch := recorded.Success == local.Success
	if statusMatch {
		points++
	} else {
		notes = append(notes, fmt.Sprintf("status mismatch: recorded=%v local=%v", recorded.Success, local.Success))
	}

	createdMatch := len(recorded.Created) == len(local.Created)
	if createdMatch {
		points++
	} else {
		notes = append(notes, fmt.Sprintf("created count mismatch: recorded=%d local=%d", len(recorded.Created), len(local.Created)))
	}

	mutatedDiff := len(recorded.Mutated) - len(local.Mutated)
	allowedDiff := 0
	if policy == DynamicFields {
		allowedDiff = 2
	}
	mutatedMatch := mutatedDiff >= 0 && mutatedDiff <= allowedDiff
	if mutatedMatch {
		points++
	} else {
		notes = append(notes, fmt.Sprintf("mutated count mismatch: recorded=%d local=%d (diff=%d)", len(recorded.Mutated), len(local.Mutated), mutatedDiff))
	}

	deletedMatch := len(recorded.Deleted) == len(local.Deleted)
	if deletedMatch {
		points++
	} else {
		notes = append(notes, fmt.Sprintf("deleted count mismatch: recorded=%d local=%d", len(recorded.Deleted), len(local.Deleted)))
	}

	return EffectsComparison{
		StatusMatch:       statusMatch,
		CreatedCountMatch: createdMatch,
		MutatedCountMatch: mutatedMatch,
		DeletedCountMatch: deletedMatch,
		MatchScore:        points / total,
		Notes:             notes,
	}
}
