// Package rewards computes the two-pool daily reward distribution: an equal-split
// base pool and a sqrt-weighted performance pool, over eligible active contributors.
package rewards

import (
	"math"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// Config mirrors config.RewardConfig's fields relevant to eligibility and payout.
type Config struct {
	DailyEmissions             float64
	BasePoolPercentage         float64
	PerformancePoolPercentage  float64
	PerformanceLookbackDays    int
	MinBlocksForActive         int
	ReputationFloor            float64
	CanaryFailureCooldownHours float64
}

// Points returns the sum over non-canary CompletedBlocks within the last
// cfg.PerformanceLookbackDays of currentTime of resourceUsage * difficultyMultiplier
// * reputationMultiplier. Submissions older than the lookback are retained in
// storage but filtered out here at read time, per the spec's open-question
// resolution.
func Points(c domain.Contributor, cfg Config, currentTime time.Time) float64 {
	cutoff := currentTime.AddDate(0, 0, -cfg.PerformanceLookbackDays)
	total := 0.0
	for _, b := range c.CompletedBlocks {
		if b.IsCanary {
			continue
		}
		if b.Timestamp.Before(cutoff) {
			continue
		}
		total += b.ResourceUsage * b.DifficultyMultiplier * c.ReputationMultiplier
	}
	return total
}

func blocksToday(c domain.Contributor, currentTime time.Time) int {
	dayStart := time.Date(currentTime.Year(), currentTime.Month(), currentTime.Day(), 0, 0, 0, 0, currentTime.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	count := 0
	for _, b := range c.CompletedBlocks {
		if b.IsCanary {
			continue
		}
		if !b.Timestamp.Before(dayStart) && b.Timestamp.Before(dayEnd) {
			count++
		}
	}
	return count
}

func inCooldown(c domain.Contributor, cfg Config, currentTime time.Time) bool {
	if c.LastCanaryFailureTime == nil {
		return false
	}
	return currentTime.Sub(*c.LastCanaryFailureTime) < time.Duration(cfg.CanaryFailureCooldownHours*float64(time.Hour))
}

// isActive reports whether c is eligible for reward distribution at currentTime.
func isActive(c domain.Contributor, cfg Config, currentTime time.Time, points float64) bool {
	if inCooldown(c, cfg, currentTime) {
		return false
	}
	if blocksToday(c, currentTime) < cfg.MinBlocksForActive {
		return false
	}
	if c.ReputationMultiplier < cfg.ReputationFloor {
		return false
	}
	if points <= 0 {
		return false
	}
	return true
}

// Calculate computes the full RewardDistribution for date, given every known
// contributor (map keyed by accountId) and currentTime (pinned by the caller to
// dayId T12:00:00Z so replay is stable).
func Calculate(date string, contributors map[string]domain.Contributor, cfg Config, currentTime time.Time) domain.RewardDistribution {
	basePoolTotal := cfg.DailyEmissions * cfg.BasePoolPercentage
	performancePoolTotal := cfg.DailyEmissions * cfg.PerformancePoolPercentage

	type activeEntry struct {
		accountID string
		points    float64
		sqrtPts   float64
	}

	var active []activeEntry
	for id, c := range contributors {
		points := Points(c, Config{PerformanceLookbackDays: cfg.PerformanceLookbackDays}, currentTime)
		if !isActive(c, cfg, currentTime, points) {
			continue
		}
		active = append(active, activeEntry{accountID: id, points: points, sqrtPts: math.Sqrt(math.Max(points, 0))})
	}

	activeCount := len(active)
	var baseShare float64
	if activeCount > 0 {
		baseShare = basePoolTotal / float64(activeCount)
	}

	sqrtTotal := 0.0
	for _, a := range active {
		sqrtTotal += a.sqrtPts
	}

	entries := make([]domain.RewardEntry, 0, activeCount)
	for _, a := range active {
		var perf float64
		if sqrtTotal > 0 {
			perf = (a.sqrtPts / sqrtTotal) * performancePoolTotal
		} else if activeCount > 0 {
			perf = performancePoolTotal / float64(activeCount)
		}
		entries = append(entries, domain.RewardEntry{
			AccountID:             a.accountID,
			BasePoolReward:        baseShare,
			PerformancePoolReward: perf,
			TotalReward:           baseShare + perf,
		})
	}

	return domain.RewardDistribution{
		Date:                   date,
		TotalEmissions:         cfg.DailyEmissions,
		BasePoolTotal:          basePoolTotal,
		PerformancePoolTotal:   performancePoolTotal,
		ActiveContributorCount: activeCount,
		Rewards:                entries,
	}
}
