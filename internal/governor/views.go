package governor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/proposalsapp/govindexer/internal/chain"
	"github.com/proposalsapp/govindexer/internal/store"
)

// ProposalDeadline view-calls proposalDeadline(proposalId) at atBlock.
func ProposalDeadline(ctx context.Context, c *chain.Client, spec Spec, proposalID *big.Int, atBlock uint64) (uint64, error) {
	values, err := c.CallView(ctx, spec.ViewABI, spec.ContractAddress, "proposalDeadline", atBlock, proposalID)
	if err != nil {
		return 0, err
	}
	return firstUint64(values, "proposalDeadline")
}

// ProposalSnapshot view-calls proposalSnapshot(proposalId) at atBlock.
func ProposalSnapshot(ctx context.Context, c *chain.Client, spec Spec, proposalID *big.Int, atBlock uint64) (uint64, error) {
	values, err := c.CallView(ctx, spec.ViewABI, spec.ContractAddress, "proposalSnapshot", atBlock, proposalID)
	if err != nil {
		return 0, err
	}
	return firstUint64(values, "proposalSnapshot")
}

// Quorum view-calls quorum(snapshotBlock) at atBlock and converts the
// returned 18-decimal fixed-point uint256 to a float64 token amount.
func Quorum(ctx context.Context, c *chain.Client, spec Spec, snapshotBlock *big.Int, atBlock uint64) (float64, error) {
	values, err := c.CallView(ctx, spec.ViewABI, spec.ContractAddress, "quorum", atBlock, snapshotBlock)
	if err != nil {
		return 0, err
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("governor: quorum: unexpected return type %T", values[0])
	}
	return chain.WeiToFloat(raw), nil
}

// State view-calls state(proposalId) at atBlock and maps the contract's
// uint8 into the indexer's ProposalState enum.
func State(ctx context.Context, c *chain.Client, spec Spec, proposalID *big.Int, atBlock uint64) (store.ProposalState, error) {
	values, err := c.CallView(ctx, spec.ViewABI, spec.ContractAddress, "state", atBlock, proposalID)
	if err != nil {
		return "", err
	}
	raw, ok := values[0].(uint8)
	if !ok {
		return "", fmt.Errorf("governor: state: unexpected return type %T", values[0])
	}
	return store.ProposalStateFromContract(raw), nil
}

func firstUint64(values []interface{}, method string) (uint64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("governor: %s: empty return", method)
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("governor: %s: unexpected return type %T", method, values[0])
	}
	return raw.Uint64(), nil
}
