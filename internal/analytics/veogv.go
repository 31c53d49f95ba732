package analytics

import "math"

const (
	// OGVStakingEpoch is the staking contract's launch, 2022-07-12 00:00 UTC.
	OGVStakingEpoch int64 = 1657584000

	SecondsPerMonth = 2629800
	SecondsPerYear  = 31536000

	// DecayFactor is the yearly voting-power growth base used on chain.
	DecayFactor = 1.8
)

// stakeMultiplier returns the exponent applied to DecayFactor for a lockup of
// months starting at blockTimestamp.
func stakeMultiplier(blockTimestamp int64, months float64) float64 {
	start := blockTimestamp
	if start < OGVStakingEpoch {
		start = OGVStakingEpoch
	}
	end := float64(start) + months*SecondsPerMonth
	return (end - float64(OGVStakingEpoch)) / SecondsPerYear
}

// VeOGVToOGV returns the OGV that must be locked for months, starting at
// blockTimestamp, to receive veOGV voting tokens.
func VeOGVToOGV(blockTimestamp int64, veOGV, months float64) float64 {
	return veOGV / math.Pow(DecayFactor, stakeMultiplier(blockTimestamp, months))
}

// OGVToVeOGV is the inverse of VeOGVToOGV.
func OGVToVeOGV(blockTimestamp int64, ogv, months float64) float64 {
	return ogv * math.Pow(DecayFactor, stakeMultiplier(blockTimestamp, months))
}
