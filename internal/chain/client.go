// Package chain adapts a raw Ethereum-compatible JSON-RPC endpoint into the
// narrow ChainClient surface the indexing engine depends on: head lookup,
// ranged log filtering, block headers, and read-only contract calls. It is
// the only package in this module that is allowed to import go-ethereum's
// transport packages (ethclient) directly.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// defaultRPCRateLimit caps outbound RPC calls per Client when the caller
// doesn't configure one explicitly, keeping a single misbehaving indexer
// from saturating a shared provider's rate limit (section 5: "RPC client
// pool per chain; shared; rate-limited by the transport").
const defaultRPCRateLimit = 20 // requests/sec

// RawLog is the decoder-facing view of a single chain log: everything the
// log decoder (C2) and the correlation pipeline (C5) need, independent of
// the go-ethereum wire type.
type RawLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// BlockHeader is the subset of header fields the timestamp estimator and
// proposal builder consume.
type BlockHeader struct {
	Number    uint64
	Timestamp time.Time // normalized to seconds, per the adapter boundary rule
}

// RPC is the narrow surface this package depends on from *ethclient.Client.
// Declaring it as an interface keeps the pipeline testable against fakes
// without dialing a real node, the same seam evm_confirm.go draws around
// *ethclient.Client for settlement verification.
type RPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// rangeTooLargePatterns matches the error strings common RPC providers
// return when a getLogs window is rejected for being too wide. Providers
// don't agree on a status code for this, so adapters match on text the way
// the reconciler already parses loosely-typed provider export payloads.
var rangeTooLargePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)query returned more than \d+ results`),
	regexp.MustCompile(`(?i)block range (is )?too (large|wide)`),
	regexp.MustCompile(`(?i)exceed(s|ed)? (the )?(maximum|max) (block )?range`),
	regexp.MustCompile(`(?i)range limit exceeded`),
}

// Client implements the ChainClient adapter (C1) over a live JSON-RPC
// endpoint.
type Client struct {
	rpc      RPC
	chainID  string
	dialAddr string
	limiter  *rate.Limiter
}

// Config configures a Client. RPCRateLimit caps outbound requests/sec
// against the endpoint; 0 selects defaultRPCRateLimit.
type Config struct {
	Endpoint     string
	ChainID      string
	RPCRateLimit float64
}

// Dial connects to the supplied RPC endpoint via ethclient.DialContext and
// applies cfg.RPCRateLimit to the returned Client.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("chain: endpoint required")
	}
	rpcClient, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, endpoint, err)
	}
	c := NewClient(rpcClient, cfg.ChainID)
	c.limiter = newLimiter(cfg.RPCRateLimit)
	return c, nil
}

// NewClient wraps an already-constructed RPC implementation. Exposed
// separately from Dial so tests can inject a fake. Defaults to
// defaultRPCRateLimit; callers needing a different ceiling should set
// Client.limiter via Dial's Config.RPCRateLimit instead.
func NewClient(rpc RPC, chainID string) *Client {
	return &Client{rpc: rpc, chainID: chainID, limiter: newLimiter(0)}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = defaultRPCRateLimit
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// wait blocks until the rate limiter admits one more outbound RPC call, or
// returns ctx's error if it's canceled first.
func (c *Client) wait(ctx context.Context) error {
	if c == nil || c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrTransport, err)
	}
	return nil
}

// Head returns the current chain head block number.
func (c *Client) Head(ctx context.Context) (uint64, error) {
	if c == nil || c.rpc == nil {
		return 0, fmt.Errorf("%w: client not configured", ErrTransport)
	}
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: head: %v", ErrTransport, err)
	}
	return head, nil
}

// Logs fetches logs for the inclusive block range [from, to] emitted by
// address, filtered to the supplied topic0 event signature.
func (c *Client) Logs(ctx context.Context, from, to uint64, address common.Address, topic0 common.Hash) ([]RawLog, error) {
	if c == nil || c.rpc == nil {
		return nil, fmt.Errorf("%w: client not configured", ErrTransport)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic0}},
	}
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		if isRangeTooLarge(err) {
			return nil, fmt.Errorf("%w: %v", ErrRangeTooLarge, err)
		}
		return nil, fmt.Errorf("%w: logs[%d,%d]: %v", ErrTransport, from, to, err)
	}
	out := make([]RawLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, RawLog{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
			LogIndex:    l.Index,
		})
	}
	return out, nil
}

func isRangeTooLarge(err error) bool {
	msg := err.Error()
	for _, pattern := range rangeTooLargePatterns {
		if pattern.MatchString(msg) {
			return true
		}
	}
	return false
}

// BlockHeader fetches a single block header by number.
func (c *Client) BlockHeader(ctx context.Context, number uint64) (BlockHeader, error) {
	if c == nil || c.rpc == nil {
		return BlockHeader{}, fmt.Errorf("%w: client not configured", ErrTransport)
	}
	if err := c.wait(ctx); err != nil {
		return BlockHeader{}, err
	}
	header, err := c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return BlockHeader{}, fmt.Errorf("%w: block %d: %v", ErrNotFound, number, err)
		}
		return BlockHeader{}, fmt.Errorf("%w: block %d: %v", ErrTransport, number, err)
	}
	if header == nil || header.Number == nil {
		return BlockHeader{}, fmt.Errorf("%w: block %d: empty header", ErrNotFound, number)
	}
	// Normalize to seconds at this boundary: header.Time is taken as
	// seconds-since-epoch as-is and is not checked for a millisecond value;
	// no code downstream rescales it.
	ts := int64(header.Time)
	return BlockHeader{
		Number:    header.Number.Uint64(),
		Timestamp: time.Unix(ts, 0).UTC(),
	}, nil
}

// CallView performs a read-only contract call against a known ABI method at
// a specific block height, returning the unpacked result values in
// declaration order.
func (c *Client) CallView(ctx context.Context, contractABI abi.ABI, address common.Address, method string, atBlock uint64, args ...interface{}) ([]interface{}, error) {
	if c == nil || c.rpc == nil {
		return nil, fmt.Errorf("%w: client not configured", ErrTransport)
	}
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{To: &address, Data: input}
	raw, err := c.rpc.CallContract(ctx, msg, new(big.Int).SetUint64(atBlock))
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrRevert, method, err)
		}
		return nil, fmt.Errorf("%w: call %s: %v", ErrTransport, method, err)
	}
	values, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return values, nil
}

func isRevert(err error) bool {
	var rpcErr gethRPCError
	if errors.As(err, &rpcErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert") || strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// gethRPCError mirrors the minimal shape go-ethereum's rpc.Error exposes;
// declared locally to keep this package's import surface narrow and avoid
// depending on the json-rpc client package merely for error introspection.
type gethRPCError interface {
	Error() string
	ErrorCode() int
}
