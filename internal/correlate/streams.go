package correlate

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/proposalsapp/govindexer/internal/chain"
	"github.com/proposalsapp/govindexer/internal/governor"
)

// rawStreams holds the decoded logs for all streams fetched in step 1,
// each sorted by (block_number, log_index) per the ordering rule in
// section 4.5.
type rawStreams struct {
	created              []chain.ProposalCreated
	canceled             []chain.ProposalCanceled
	executed             []chain.ProposalExecuted
	contenderAdded       []chain.ContenderAdded
	voteCastForContender []chain.VoteCastForContender
	voteCast             []chain.VoteCast
}

// fetchStreams issues the concurrent log fetches for spec's event set over
// [from, to] and decodes every log, failing the whole batch on the first
// Transport/RangeTooLarge/Malformed error, matching "any single Transport
// failure aborts the batch."
func fetchStreams(ctx context.Context, client *chain.Client, spec governor.Spec, from, to uint64) (rawStreams, error) {
	var out rawStreams
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logs, err := fetchAndDecode(gctx, client, spec.ContractAddress, spec.Events.ProposalCreated, from, to, chain.DecodeProposalCreated)
		if err != nil {
			return err
		}
		sort.Slice(logs, func(i, j int) bool { return logLess(logs[i].Log, logs[j].Log) })
		out.created = logs
		return nil
	})
	g.Go(func() error {
		logs, err := fetchAndDecode(gctx, client, spec.ContractAddress, spec.Events.ProposalCanceled, from, to, chain.DecodeProposalCanceled)
		if err != nil {
			return err
		}
		sort.Slice(logs, func(i, j int) bool { return logLess(logs[i].Log, logs[j].Log) })
		out.canceled = logs
		return nil
	})
	g.Go(func() error {
		logs, err := fetchAndDecode(gctx, client, spec.ContractAddress, spec.Events.ProposalExecuted, from, to, chain.DecodeProposalExecuted)
		if err != nil {
			return err
		}
		sort.Slice(logs, func(i, j int) bool { return logLess(logs[i].Log, logs[j].Log) })
		out.executed = logs
		return nil
	})
	if spec.Events.ContenderAdded != nil {
		g.Go(func() error {
			logs, err := fetchAndDecode(gctx, client, spec.ContractAddress, *spec.Events.ContenderAdded, from, to, chain.DecodeContenderAdded)
			if err != nil {
				return err
			}
			sort.Slice(logs, func(i, j int) bool { return logLess(logs[i].Log, logs[j].Log) })
			out.contenderAdded = logs
			return nil
		})
	}
	if spec.Events.VoteCastForContender != nil {
		g.Go(func() error {
			logs, err := fetchAndDecode(gctx, client, spec.ContractAddress, *spec.Events.VoteCastForContender, from, to, chain.DecodeVoteCastForContender)
			if err != nil {
				return err
			}
			sort.Slice(logs, func(i, j int) bool { return logLess(logs[i].Log, logs[j].Log) })
			out.voteCastForContender = logs
			return nil
		})
	}
	if spec.Events.VoteCast != nil {
		g.Go(func() error {
			logs, err := fetchAndDecode(gctx, client, spec.ContractAddress, *spec.Events.VoteCast, from, to, chain.DecodeVoteCast)
			if err != nil {
				return err
			}
			sort.Slice(logs, func(i, j int) bool { return logLess(logs[i].Log, logs[j].Log) })
			out.voteCast = logs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return rawStreams{}, err
	}
	return out, nil
}

func logLess(a, b chain.LogMeta) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	return a.LogIndex < b.LogIndex
}

func fetchAndDecode[T any](ctx context.Context, client *chain.Client, address common.Address, spec chain.EventSpec, from, to uint64, decode func(chain.EventSpec, chain.RawLog) (T, error)) ([]T, error) {
	rawLogs, err := client.Logs(ctx, from, to, address, spec.Topic0())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rawLogs))
	for _, raw := range rawLogs {
		decoded, err := decode(spec, raw)
		if err != nil {
			return nil, fmt.Errorf("correlate: decode %s: %w", spec.Name, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}
