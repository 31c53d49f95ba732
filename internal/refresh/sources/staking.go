package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
	"github.com/web3-frozen/ousd-analytics/internal/cache"
	"github.com/web3-frozen/ousd-analytics/internal/chain"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

const (
	stakingCacheTTL = 24 * time.Hour

	// Ethereum mainnet produces a block every 12s.
	defaultBlocksPerDay = 7200
	defaultStakingDays  = 30
)

// HistorySampler reads daily contract storage history.
type HistorySampler interface {
	BlockNumber(ctx context.Context) (uint64, error)
	SampleHistory(ctx context.Context, req chain.SampleRequest) (*chain.History, error)
}

// StakingConfig locates the two storage words charted by Staking.
type StakingConfig struct {
	Contract     string
	StakedSlot   string // OGV locked in the staking contract
	SupplySlot   string // veOGV total supply
	Days         int
	BlocksPerDay uint64
}

// DefaultStakingConfig reads the veOGV contract's storage layout.
func DefaultStakingConfig(contract string) StakingConfig {
	return StakingConfig{
		Contract:     contract,
		StakedSlot:   "0x9",
		SupplySlot:   "0x2",
		Days:         defaultStakingDays,
		BlocksPerDay: defaultBlocksPerDay,
	}
}

type stakingHistory struct {
	Staked []analytics.Point `json:"staked"`
	Supply []analytics.Point `json:"supply"`
}

// Staking charts OGV staked and veOGV supply from on-chain history. The
// sampled history is cached for a day since a sample costs 3×days calls.
type Staking struct {
	sampler HistorySampler
	cache   cache.Store
	cfg     StakingConfig
	logger  *slog.Logger
}

func NewStaking(sampler HistorySampler, store cache.Store, cfg StakingConfig, logger *slog.Logger) *Staking {
	if cfg.Days <= 0 {
		cfg.Days = defaultStakingDays
	}
	if cfg.BlocksPerDay == 0 {
		cfg.BlocksPerDay = defaultBlocksPerDay
	}
	return &Staking{sampler: sampler, cache: store, cfg: cfg, logger: logger}
}

func (s *Staking) Name() string { return "staking" }

func (s *Staking) cacheKey() string {
	return fmt.Sprintf("staking:%s:%d", s.cfg.Contract, s.cfg.Days)
}

func (s *Staking) FetchSnapshot(ctx context.Context) (*refresh.Snapshot, error) {
	hist, err := s.history(ctx)
	if err != nil {
		return nil, err
	}

	snap := refresh.NewSnapshot(s.Name())
	snap.Series["staked"] = hist.Staked
	snap.Series["ve_supply"] = hist.Supply
	if v, ok := analytics.Last(hist.Staked); ok {
		snap.Metrics["staked"] = v
	}
	if v, ok := analytics.Last(hist.Supply); ok {
		snap.Metrics["ve_supply"] = v
	}
	if staked := snap.Metrics["staked"]; staked > 0 {
		snap.Metrics["ve_per_ogv"] = snap.Metrics["ve_supply"] / staked
	}
	return snap, nil
}

func (s *Staking) history(ctx context.Context) (*stakingHistory, error) {
	var hist stakingHistory
	hit, err := s.cache.Get(ctx, s.cacheKey(), &hist)
	if err != nil {
		s.logger.Warn("staking cache read failed", "error", err)
	}
	if hit {
		return &hist, nil
	}

	head, err := s.sampler.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("staking: block number: %w", err)
	}
	h, err := s.sampler.SampleHistory(ctx, chain.SampleRequest{
		Days:         s.cfg.Days,
		BlocksPerDay: s.cfg.BlocksPerDay,
		CurrentBlock: head,
		Contract:     s.cfg.Contract,
		SlotA:        s.cfg.StakedSlot,
		SlotB:        s.cfg.SupplySlot,
	})
	if err != nil {
		return nil, fmt.Errorf("staking: sample history: %w", err)
	}
	staked, supply, err := h.Series()
	if err != nil {
		return nil, fmt.Errorf("staking: decode history: %w", err)
	}
	hist = stakingHistory{Staked: staked, Supply: supply}

	if err := s.cache.Set(ctx, s.cacheKey(), hist, stakingCacheTTL); err != nil {
		s.logger.Warn("staking cache write failed", "error", err)
	}
	return &hist, nil
}
