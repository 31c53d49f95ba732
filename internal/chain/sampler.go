package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
)

// TokenDecimals is the precision of OGV and veOGV.
const TokenDecimals = 18

// SampleRequest selects the contract storage to read once per day.
type SampleRequest struct {
	Days         int
	BlocksPerDay uint64
	CurrentBlock uint64
	Contract     string
	SlotA        string
	SlotB        string
}

// Heights returns the sampled block heights, newest first.
func (r SampleRequest) Heights() []uint64 {
	out := make([]uint64, r.Days)
	for i := range out {
		out[i] = r.CurrentBlock - uint64(i)*r.BlocksPerDay
	}
	return out
}

func (r SampleRequest) validate() error {
	if r.Days <= 0 {
		return errors.New("days must be positive")
	}
	if r.BlocksPerDay == 0 {
		return errors.New("blocks per day must be positive")
	}
	if uint64(r.Days-1)*r.BlocksPerDay > r.CurrentBlock {
		return fmt.Errorf("%d days of %d blocks reaches before genesis from block %d",
			r.Days, r.BlocksPerDay, r.CurrentBlock)
	}
	if r.Contract == "" || r.SlotA == "" || r.SlotB == "" {
		return errors.New("contract and both slots are required")
	}
	return nil
}

// Calls builds the 3×Days batch: slot A at each height, then slot B at each
// height, then the block header at each height.
func (r SampleRequest) Calls() []Call {
	heights := r.Heights()
	calls := make([]Call, 0, 3*len(heights))
	for _, h := range heights {
		calls = append(calls, Call{Method: "eth_getStorageAt", Params: []any{r.Contract, r.SlotA, toQuantity(h)}})
	}
	for _, h := range heights {
		calls = append(calls, Call{Method: "eth_getStorageAt", Params: []any{r.Contract, r.SlotB, toQuantity(h)}})
	}
	for _, h := range heights {
		calls = append(calls, Call{Method: "eth_getBlockByNumber", Params: []any{toQuantity(h), false}})
	}
	return calls
}

// History holds the three index-aligned arrays of a sampling batch. Index i
// in each refers to the same block.
type History struct {
	Heights  []uint64 // expected heights, nil when unknown
	SlotA    []Response
	SlotB    []Response
	Blocks   []Response
	Decimals int32
}

// Days is the number of sampled blocks.
func (h *History) Days() int { return len(h.Blocks) }

// Reshape splits a flat 3×days response into aligned arrays using indices i,
// i+days and i+2×days. Item errors are kept for Samples to report.
func Reshape(flat []Response, days int) (*History, error) {
	if days <= 0 || len(flat) != 3*days {
		return nil, fmt.Errorf("reshape: got %d responses for %d days", len(flat), days)
	}
	h := &History{
		SlotA:    make([]Response, days),
		SlotB:    make([]Response, days),
		Blocks:   make([]Response, days),
		Decimals: TokenDecimals,
	}
	for i := 0; i < days; i++ {
		h.SlotA[i] = flat[i]
		h.SlotB[i] = flat[i+days]
		h.Blocks[i] = flat[i+2*days]
	}
	return h, nil
}

// SampleHistory reads req in a single batch call.
func (c *Client) SampleHistory(ctx context.Context, req SampleRequest) (*History, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("sample history: %w", err)
	}
	flat, err := c.Batch(ctx, req.Calls())
	if err != nil {
		return nil, err
	}
	h, err := Reshape(flat, req.Days)
	if err != nil {
		return nil, err
	}
	h.Heights = req.Heights()
	return h, nil
}

// StorageSample is the decoded state at one block.
type StorageSample struct {
	BlockNumber uint64          `json:"block_number"`
	Timestamp   time.Time       `json:"timestamp"`
	A           decimal.Decimal `json:"a"`
	B           decimal.Decimal `json:"b"`
}

type blockHeader struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

// Samples decodes every index, newest first. The first item-level RPC error
// encountered is returned.
func (h *History) Samples() ([]StorageSample, error) {
	out := make([]StorageSample, h.Days())
	for i := range out {
		var blk *blockHeader
		if err := h.Blocks[i].Decode(&blk); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if blk == nil {
			return nil, fmt.Errorf("block %d: not found", i)
		}
		num, err := parseQuantity(blk.Number)
		if err != nil {
			return nil, fmt.Errorf("block %d number: %w", i, err)
		}
		if h.Heights != nil && num.Uint64() != h.Heights[i] {
			return nil, fmt.Errorf("block %d: got height %d, want %d", i, num.Uint64(), h.Heights[i])
		}
		ts, err := parseQuantity(blk.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("block %d timestamp: %w", i, err)
		}

		a, err := h.word(h.SlotA[i])
		if err != nil {
			return nil, fmt.Errorf("slot a at block %d: %w", num.Uint64(), err)
		}
		b, err := h.word(h.SlotB[i])
		if err != nil {
			return nil, fmt.Errorf("slot b at block %d: %w", num.Uint64(), err)
		}

		out[i] = StorageSample{
			BlockNumber: num.Uint64(),
			Timestamp:   time.Unix(ts.Int64(), 0).UTC(),
			A:           a,
			B:           b,
		}
	}
	return out, nil
}

// Series returns the two slots as time series ordered oldest first.
func (h *History) Series() (a, b []analytics.Point, err error) {
	samples, err := h.Samples()
	if err != nil {
		return nil, nil, err
	}
	a = make([]analytics.Point, len(samples))
	b = make([]analytics.Point, len(samples))
	for i, s := range samples {
		j := len(samples) - 1 - i
		a[j] = analytics.Point{Timestamp: s.Timestamp, Value: s.A.InexactFloat64()}
		b[j] = analytics.Point{Timestamp: s.Timestamp, Value: s.B.InexactFloat64()}
	}
	return a, b, nil
}

func (h *History) word(r Response) (decimal.Decimal, error) {
	var hex string
	if err := r.Decode(&hex); err != nil {
		return decimal.Zero, err
	}
	v, err := parseQuantity(hex)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(v, -h.Decimals), nil
}
