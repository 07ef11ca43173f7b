package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventSpec declares the shape of one governor log: its canonical Solidity
// signature (used to derive the topic0 hash) and an abi.Event used to
// unpack non-indexed parameters. Specs are declarative data, not generated
// code, per the adapter's "opaque log-decoder" scope in spec section 1.
type EventSpec struct {
	Name      string
	Signature string // e.g. "ProposalCreated(uint256,address,address[],uint256[],string[],bytes[],uint256,uint256,string)"
	ABI       abi.Event
}

// Topic0 returns the keccak256 hash of the event's canonical signature,
// the value logs are filtered and matched against.
func (s EventSpec) Topic0() common.Hash {
	return crypto.Keccak256Hash([]byte(s.Signature))
}

// ProposalCreated mirrors the governor's ProposalCreated log.
type ProposalCreated struct {
	ProposalID  string // decimal uint256
	Proposer    string // lowercase 0x address
	Description string
	StartBlock  uint64
	EndBlock    uint64
	Log         LogMeta
}

// ProposalCanceled mirrors the governor's ProposalCanceled log.
type ProposalCanceled struct {
	ProposalID string
	Log        LogMeta
}

// ProposalExecuted mirrors the governor's ProposalExecuted log.
type ProposalExecuted struct {
	ProposalID string
	Log        LogMeta
}

// ContenderAdded mirrors the nomination governor's ContenderAdded log.
type ContenderAdded struct {
	ProposalID string
	Contender  string // lowercase 0x address
	Log        LogMeta
}

// VoteCastForContender mirrors the nomination governor's
// VoteCastForContender log.
type VoteCastForContender struct {
	ProposalID string
	Voter      string
	Contender  string
	Votes      string // decimal uint256, wei-scale
	Log        LogMeta
}

// VoteCast mirrors the standard GovernorCountingSimple VoteCast log used by
// the treasury governor variant.
type VoteCast struct {
	ProposalID string
	Voter      string
	Support    uint8
	Weight     string // decimal uint256, wei-scale
	Reason     string
	Log        LogMeta
}

// LogMeta carries the block/tx coordinates every decoded event needs for
// ordering (block_number, log_index), persistence (txid), and timestamp
// estimation.
type LogMeta struct {
	BlockNumber uint64
	LogIndex    uint
	TxHash      string // "0x"-prefixed lowercase hex
}

func newLogMeta(l RawLog) LogMeta {
	return LogMeta{
		BlockNumber: l.BlockNumber,
		LogIndex:    l.LogIndex,
		TxHash:      "0x" + strings.ToLower(strings.TrimPrefix(l.TxHash.Hex(), "0x")),
	}
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// DecodeProposalCreated decodes a raw ProposalCreated log. Fatal
// (ErrMalformed) on ABI mismatch, matching spec section 7: decoding failure
// indicates ABI drift and aborts the batch.
func DecodeProposalCreated(spec EventSpec, l RawLog) (ProposalCreated, error) {
	if len(l.Topics) == 0 || l.Topics[0] != spec.Topic0() {
		return ProposalCreated{}, fmt.Errorf("%w: topic mismatch for %s", ErrMalformed, spec.Name)
	}
	values, err := spec.ABI.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return ProposalCreated{}, fmt.Errorf("%w: %s: %v", ErrMalformed, spec.Name, err)
	}
	get := fieldGetter(spec, values)
	proposalID, err := get.bigInt("proposalId")
	if err != nil {
		return ProposalCreated{}, err
	}
	proposer, err := get.address("proposer")
	if err != nil {
		return ProposalCreated{}, err
	}
	startBlock, err := get.bigInt("startBlock")
	if err != nil {
		return ProposalCreated{}, err
	}
	endBlock, err := get.bigInt("endBlock")
	if err != nil {
		return ProposalCreated{}, err
	}
	description, err := get.str("description")
	if err != nil {
		return ProposalCreated{}, err
	}
	return ProposalCreated{
		ProposalID:  proposalID.String(),
		Proposer:    lowerHex(proposer),
		Description: description,
		StartBlock:  startBlock.Uint64(),
		EndBlock:    endBlock.Uint64(),
		Log:         newLogMeta(l),
	}, nil
}

// DecodeProposalCanceled decodes a raw ProposalCanceled log.
func DecodeProposalCanceled(spec EventSpec, l RawLog) (ProposalCanceled, error) {
	if len(l.Topics) == 0 || l.Topics[0] != spec.Topic0() {
		return ProposalCanceled{}, fmt.Errorf("%w: topic mismatch for %s", ErrMalformed, spec.Name)
	}
	values, err := spec.ABI.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return ProposalCanceled{}, fmt.Errorf("%w: %s: %v", ErrMalformed, spec.Name, err)
	}
	id, err := fieldGetter(spec, values).bigInt("proposalId")
	if err != nil {
		return ProposalCanceled{}, err
	}
	return ProposalCanceled{ProposalID: id.String(), Log: newLogMeta(l)}, nil
}

// DecodeProposalExecuted decodes a raw ProposalExecuted log.
func DecodeProposalExecuted(spec EventSpec, l RawLog) (ProposalExecuted, error) {
	if len(l.Topics) == 0 || l.Topics[0] != spec.Topic0() {
		return ProposalExecuted{}, fmt.Errorf("%w: topic mismatch for %s", ErrMalformed, spec.Name)
	}
	values, err := spec.ABI.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return ProposalExecuted{}, fmt.Errorf("%w: %s: %v", ErrMalformed, spec.Name, err)
	}
	id, err := fieldGetter(spec, values).bigInt("proposalId")
	if err != nil {
		return ProposalExecuted{}, err
	}
	return ProposalExecuted{ProposalID: id.String(), Log: newLogMeta(l)}, nil
}

// DecodeContenderAdded decodes a raw ContenderAdded log. proposalId and
// contender are both indexed topics in the governor ABI.
func DecodeContenderAdded(spec EventSpec, l RawLog) (ContenderAdded, error) {
	if len(l.Topics) != 3 || l.Topics[0] != spec.Topic0() {
		return ContenderAdded{}, fmt.Errorf("%w: topic mismatch for %s", ErrMalformed, spec.Name)
	}
	proposalID := new(topicWord).fromHash(l.Topics[1]).bigInt()
	contender := common.BytesToAddress(l.Topics[2].Bytes())
	return ContenderAdded{
		ProposalID: proposalID.String(),
		Contender:  lowerHex(contender),
		Log:        newLogMeta(l),
	}, nil
}

// DecodeVoteCastForContender decodes a raw VoteCastForContender log.
// proposalId, voter, and contender are indexed; votes (and the other two
// uint256 fields the nomination governor emits but this system does not
// persist) are packed in the data segment.
func DecodeVoteCastForContender(spec EventSpec, l RawLog) (VoteCastForContender, error) {
	if len(l.Topics) != 4 || l.Topics[0] != spec.Topic0() {
		return VoteCastForContender{}, fmt.Errorf("%w: topic mismatch for %s", ErrMalformed, spec.Name)
	}
	values, err := spec.ABI.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return VoteCastForContender{}, fmt.Errorf("%w: %s: %v", ErrMalformed, spec.Name, err)
	}
	votes, err := fieldGetter(spec, values).bigInt("votes")
	if err != nil {
		return VoteCastForContender{}, err
	}
	proposalID := new(topicWord).fromHash(l.Topics[1]).bigInt()
	voter := common.BytesToAddress(l.Topics[2].Bytes())
	contender := common.BytesToAddress(l.Topics[3].Bytes())
	return VoteCastForContender{
		ProposalID: proposalID.String(),
		Voter:      lowerHex(voter),
		Contender:  lowerHex(contender),
		Votes:      votes.String(),
		Log:        newLogMeta(l),
	}, nil
}

// DecodeVoteCast decodes a raw VoteCast log emitted by the treasury
// governor's GovernorCountingSimple extension. Only voter is indexed.
func DecodeVoteCast(spec EventSpec, l RawLog) (VoteCast, error) {
	if len(l.Topics) != 2 || l.Topics[0] != spec.Topic0() {
		return VoteCast{}, fmt.Errorf("%w: topic mismatch for %s", ErrMalformed, spec.Name)
	}
	values, err := spec.ABI.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return VoteCast{}, fmt.Errorf("%w: %s: %v", ErrMalformed, spec.Name, err)
	}
	get := fieldGetter(spec, values)
	proposalID, err := get.bigInt("proposalId")
	if err != nil {
		return VoteCast{}, err
	}
	support, err := get.uint8("support")
	if err != nil {
		return VoteCast{}, err
	}
	weight, err := get.bigInt("weight")
	if err != nil {
		return VoteCast{}, err
	}
	reason, _ := get.str("reason")
	voter := common.BytesToAddress(l.Topics[1].Bytes())
	return VoteCast{
		ProposalID: proposalID.String(),
		Voter:      lowerHex(voter),
		Support:    support,
		Weight:     weight.String(),
		Reason:     reason,
		Log:        newLogMeta(l),
	}, nil
}
