package governor

import (
	"fmt"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/proposalsapp/govindexer/internal/chain"
)

// Variant identifies which governor event shape a registered indexer
// speaks.
type Variant string

// The two governor variants this indexer understands.
const (
	VariantNomination Variant = "arbitrum_council_nominations"
	VariantTreasury   Variant = "arbitrum_treasury"
)

// EventSet is the per-variant set of log streams the correlation pipeline
// fans out to in step 1 of the event correlation algorithm. The Nomination
// variant fetches five streams (including ContenderAdded); the Treasury
// variant fetches four, since its choices are static and it has no
// contender concept.
type EventSet struct {
	ProposalCreated      chain.EventSpec
	ProposalCanceled     chain.EventSpec
	ProposalExecuted     chain.EventSpec
	ContenderAdded       *chain.EventSpec // nil for variants without nominees
	VoteCastForContender *chain.EventSpec // nil for variants without nominees
	VoteCast             *chain.EventSpec // nil for the nomination variant
}

// HasNominees reports whether this variant tracks a dynamic contender
// list via ContenderAdded, as opposed to a static choice set.
func (s EventSet) HasNominees() bool {
	return s.ContenderAdded != nil
}

// staticChoicesBySupport is the choices array for variants that don't derive it
// from ContenderAdded events (currently only the Treasury variant, whose
// GovernorCountingSimple support values are fixed).
var staticChoicesBySupport = []string{"For", "Against", "Abstain"}

// StaticChoices returns the fixed choice labels for variants without a
// dynamic nominee list.
func StaticChoices() []string {
	out := make([]string, len(staticChoicesBySupport))
	copy(out, staticChoicesBySupport)
	return out
}

// Spec fully describes one registered indexer's governor: its contract
// address, chain, event streams, and the view ABI used for derived state.
type Spec struct {
	Variant         Variant
	ContractAddress common.Address
	ChainID         string
	Events          EventSet
	ViewABI         gethabi.ABI
}

// NewNominationSpec builds the Spec for a Security Council Nomination
// governor deployed at address on chainID.
func NewNominationSpec(address common.Address, chainID string) (Spec, error) {
	viewABI, err := ViewABI()
	if err != nil {
		return Spec{}, fmt.Errorf("governor: parse view abi: %w", err)
	}
	proposalEvents, err := gethabi.JSON(strings.NewReader(sharedProposalEventsABIJSON))
	if err != nil {
		return Spec{}, fmt.Errorf("governor: parse proposal events abi: %w", err)
	}
	nominationEvents, err := gethabi.JSON(strings.NewReader(nominationEventsABIJSON))
	if err != nil {
		return Spec{}, fmt.Errorf("governor: parse nomination events abi: %w", err)
	}
	contenderAdded := buildEventSpec(nominationEvents, "ContenderAdded",
		"ContenderAdded(uint256,address)")
	voteCastForContender := buildEventSpec(nominationEvents, "VoteCastForContender",
		"VoteCastForContender(uint256,address,address,uint256,uint256,uint256)")

	return Spec{
		Variant:         VariantNomination,
		ContractAddress: address,
		ChainID:         chainID,
		ViewABI:         viewABI,
		Events: EventSet{
			ProposalCreated: buildEventSpec(proposalEvents, "ProposalCreated",
				"ProposalCreated(uint256,address,address[],uint256[],string[],bytes[],uint256,uint256,string)"),
			ProposalCanceled: buildEventSpec(proposalEvents, "ProposalCanceled",
				"ProposalCanceled(uint256)"),
			ProposalExecuted: buildEventSpec(proposalEvents, "ProposalExecuted",
				"ProposalExecuted(uint256)"),
			ContenderAdded:       &contenderAdded,
			VoteCastForContender: &voteCastForContender,
		},
	}, nil
}

// NewTreasurySpec builds the Spec for a standard OpenZeppelin
// Governor+GovernorCountingSimple treasury governor deployed at address on
// chainID.
func NewTreasurySpec(address common.Address, chainID string) (Spec, error) {
	viewABI, err := ViewABI()
	if err != nil {
		return Spec{}, fmt.Errorf("governor: parse view abi: %w", err)
	}
	proposalEvents, err := gethabi.JSON(strings.NewReader(sharedProposalEventsABIJSON))
	if err != nil {
		return Spec{}, fmt.Errorf("governor: parse proposal events abi: %w", err)
	}
	voteEvents, err := gethabi.JSON(strings.NewReader(treasuryVoteCastABIJSON))
	if err != nil {
		return Spec{}, fmt.Errorf("governor: parse vote cast abi: %w", err)
	}
	voteCast := buildEventSpec(voteEvents, "VoteCast",
		"VoteCast(address,uint256,uint8,uint256,string)")

	return Spec{
		Variant:         VariantTreasury,
		ContractAddress: address,
		ChainID:         chainID,
		ViewABI:         viewABI,
		Events: EventSet{
			ProposalCreated: buildEventSpec(proposalEvents, "ProposalCreated",
				"ProposalCreated(uint256,address,address[],uint256[],string[],bytes[],uint256,uint256,string)"),
			ProposalCanceled: buildEventSpec(proposalEvents, "ProposalCanceled",
				"ProposalCanceled(uint256)"),
			ProposalExecuted: buildEventSpec(proposalEvents, "ProposalExecuted",
				"ProposalExecuted(uint256)"),
			VoteCast: &voteCast,
		},
	}, nil
}
