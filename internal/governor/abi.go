// Package governor declares the two governor variants this indexer
// understands (the Security Council Nomination governor and the Treasury
// governor) as data: event specs, view-method ABI, and contract addresses.
// Neither variant pulls in generated contract bindings; both are built on
// go-ethereum's accounts/abi directly, consistent with generated ABI
// bindings being out of scope for the core.
package governor

import (
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/proposalsapp/govindexer/internal/chain"
)

// viewABIJSON is the shared view-method surface both governor variants
// expose: proposalDeadline, proposalSnapshot, quorum, state. Embedded as a
// literal ABI JSON fragment rather than a full generated binding.
const viewABIJSON = `[
  {"type":"function","name":"proposalDeadline","stateMutability":"view",
   "inputs":[{"name":"proposalId","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"proposalSnapshot","stateMutability":"view",
   "inputs":[{"name":"proposalId","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"quorum","stateMutability":"view",
   "inputs":[{"name":"blockNumber","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"state","stateMutability":"view",
   "inputs":[{"name":"proposalId","type":"uint256"}],
   "outputs":[{"name":"","type":"uint8"}]}
]`

// ViewABI parses the shared view-method ABI once; callers pack/unpack
// against it through chain.Client.CallView.
func ViewABI() (gethabi.ABI, error) {
	return gethabi.JSON(strings.NewReader(viewABIJSON))
}

func mustEvent(parsed gethabi.ABI, name string) gethabi.Event {
	return parsed.Events[name]
}

// sharedProposalEventsABIJSON declares ProposalCreated, ProposalCanceled, and
// ProposalExecuted, shared between both governor variants: both emit the
// standard OpenZeppelin Governor proposal lifecycle events verbatim.
const sharedProposalEventsABIJSON = `[
  {"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":false},
    {"name":"proposer","type":"address","indexed":false},
    {"name":"targets","type":"address[]","indexed":false},
    {"name":"values","type":"uint256[]","indexed":false},
    {"name":"signatures","type":"string[]","indexed":false},
    {"name":"calldatas","type":"bytes[]","indexed":false},
    {"name":"startBlock","type":"uint256","indexed":false},
    {"name":"endBlock","type":"uint256","indexed":false},
    {"name":"description","type":"string","indexed":false}
  ]},
  {"type":"event","name":"ProposalCanceled","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":false}
  ]},
  {"type":"event","name":"ProposalExecuted","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":false}
  ]}
]`

// nominationEventsABIJSON covers the Security Council Nomination governor's
// extension events: nominee registration and per-contender vote casting.
const nominationEventsABIJSON = `[
  {"type":"event","name":"ContenderAdded","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":true},
    {"name":"contender","type":"address","indexed":true}
  ]},
  {"type":"event","name":"VoteCastForContender","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":true},
    {"name":"voter","type":"address","indexed":true},
    {"name":"contender","type":"address","indexed":true},
    {"name":"votes","type":"uint256","indexed":false},
    {"name":"totalUsedVotes","type":"uint256","indexed":false},
    {"name":"usableVotes","type":"uint256","indexed":false}
  ]}
]`

// treasuryVoteCastABIJSON covers the standard GovernorCountingSimple
// VoteCast event used by the Treasury governor.
const treasuryVoteCastABIJSON = `[
  {"type":"event","name":"VoteCast","anonymous":false,"inputs":[
    {"name":"voter","type":"address","indexed":true},
    {"name":"proposalId","type":"uint256","indexed":false},
    {"name":"support","type":"uint8","indexed":false},
    {"name":"weight","type":"uint256","indexed":false},
    {"name":"reason","type":"string","indexed":false}
  ]}
]`

func buildEventSpec(parsed gethabi.ABI, name, signature string) chain.EventSpec {
	return chain.EventSpec{
		Name:      name,
		Signature: signature,
		ABI:       mustEvent(parsed, name),
	}
}
