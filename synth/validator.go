package synth

import (
	"strconv"

	"github.com/suisim/sandbox/bcs"
)

// ValidatorFields is the minimal per-validator shape the Rust
// benchmark synthesizer builds (original_source's
// src/benchmark/mm2/type_synthesizer.rs, synthesize_minimal_validator):
// enough fields for staking-pool arithmetic and validator-set
// iteration to behave sanely without a real genesis.
type ValidatorFields struct {
	Name              string
	SuiAddress        bcs.Address
	VotingPower       uint64
	GasPrice          uint64
	CommissionRate    uint64
	NextEpochStake    uint64
	NextEpochGasPrice uint64
	NextEpochCommRate uint64
}

const (
	validatorTotalStake        = 10_000_000_000_000_000
	validatorVotingPower       = 1000
	validatorGasPrice          = 1000
	validatorCommissionRate    = 200
	validatorPubkeyLen         = 48
	validatorProofLen          = 96
	validatorNetAddrLen        = 32
	validatorTotalStakePerNext = 1_000_000_000_000_000
)

// synthesizeValidatorSet lays out a ValidatorSet with cfg.ValidatorCount
// (default DefaultValidatorCount) minimal validators, following the
// byte order of the Rust original's synthesize_validator_set: total
// stake, the active-validator vector, then the remaining empty
// collections (pending/staking-pool-mappings/inactive/candidates as
// UID+size-zero tables, pending-removals/at-risk as empty vectors),
// and a trailing empty extra_fields bag.
func (s *Synthesizer) synthesizeValidatorSet() []byte {
	count := s.cfg.ValidatorCount
	if count <= 0 {
		count = DefaultValidatorCount
	}

	e := bcs.NewEncoder()
	e.U64(validatorTotalStake)

	e.ULEB128(uint64(count))
	for i := 0; i < count; i++ {
		e.Raw(s.synthesizeValidator(i))
	}

	// pending_active_validators, staking_pool_mappings, inactive_validators,
	// validator_candidates: each an empty Table (UID || size=0).
	for i := 0; i < 4; i++ {
		e.Raw(make([]byte, bcs.AddressLength))
		e.U64(0)
	}

	// pending_removals: empty vector<u64>; at_risk_validators: empty VecMap.
	e.ULEB128(0)
	e.ULEB128(0)

	// extra_fields: Bag (UID || size=0).
	e.Raw(make([]byte, bcs.AddressLength))
	e.U64(0)

	return e.Bytes()
}

// synthesizeValidator builds one minimal Validator at the given index,
// grounded on synthesize_minimal_validator: a unique address (last byte
// set to index+1), placeholder key material, a derived name, empty
// optional fields, and a nested StakingPool.
func (s *Synthesizer) synthesizeValidator(index int) []byte {
	addr := bcs.Address{}
	addr[bcs.AddressLength-1] = byte(index + 1)

	e := bcs.NewEncoder()
	e.Address(addr)

	e.BytesVec(make([]byte, validatorPubkeyLen))  // protocol_pubkey_bytes
	e.BytesVec(make([]byte, validatorProofLen))    // proof_of_possession
	e.BytesVec(make([]byte, validatorPubkeyLen))   // network_pubkey_bytes
	e.BytesVec(make([]byte, validatorPubkeyLen))   // worker_pubkey_bytes

	e.String(validatorName(index))

	// description, image_url, project_url, net_address, p2p_address,
	// primary_address, worker_address: empty Strings.
	for i := 0; i < 7; i++ {
		e.String("")
	}

	// next_epoch_{protocol,network,worker}_pubkey_bytes, next_epoch_{proof,
	// net,p2p,primary,worker}_address: Option::None placeholders (8 fields
	// per the original's minimal validator, collapsed to None uniformly).
	for i := 0; i < 8; i++ {
		e.Bool(false) // Option::None
	}

	// extra_fields: Bag.
	e.Raw(make([]byte, bcs.AddressLength))
	e.U64(0)

	e.U64(validatorVotingPower)
	e.Raw(make([]byte, bcs.AddressLength)) // operation_cap_id
	e.U64(validatorGasPrice)

	e.Raw(s.synthesizeStakingPool(addr, index))

	e.U64(validatorCommissionRate)
	nextStake := uint64(validatorTotalStakePerNext)
	if count := s.cfg.ValidatorCount; count > 0 {
		nextStake = uint64(validatorTotalStakePerNext) / uint64(count)
	}
	e.U64(nextStake)
	e.U64(validatorGasPrice)
	e.U64(validatorCommissionRate)

	// extra_fields: Bag.
	e.Raw(make([]byte, bcs.AddressLength))
	e.U64(0)

	return e.Bytes()
}

func (s *Synthesizer) synthesizeStakingPool(validatorAddr bcs.Address, _ int) []byte {
	e := bcs.NewEncoder()
	e.Raw(make([]byte, bcs.AddressLength)) // id: UID
	e.Address(validatorAddr)               // validator_address
	e.Bool(false)                          // activation_epoch: Option::None
	e.Bool(false)                          // deactivation_epoch: Option::None
	e.U64(0)                               // sui_balance
	e.U64(0)                               // rewards_pool: Balance
	e.U64(0)                               // pool_token_balance
	// exchange_rates: Table (UID || size=0)
	e.Raw(make([]byte, bcs.AddressLength))
	e.U64(0)
	e.U64(0) // pending_stake
	e.U64(0) // pending_total_sui_withdraw
	e.U64(0) // pending_pool_token_withdraw
	// extra_fields: Bag
	e.Raw(make([]byte, bcs.AddressLength))
	e.U64(0)
	return e.Bytes()
}

func validatorName(index int) string {
	return "Validator" + strconv.Itoa(index)
}
