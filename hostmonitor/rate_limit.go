package hostmonitor

import (
	"math"
	"time"
)

const (
	// flapCountScale is the number of flaps we allow per rate limited
	// tier. Increasing this value makes the rate limiting more lenient,
	// decreasing it makes it stricter.
	flapCountScale = 200

	// flapCountCooldownFactor is the factor by which a host's flap count
	// is decreased when it has not flapped for the cooldown period.
	flapCountCooldownFactor = 0.95

	// flapCountCooldownPeriod is the amount of time a host must go
	// without flapping before its all-time flap count starts decaying by
	// the cooldown factor.
	flapCountCooldownPeriod = time.Hour * 8
)

// rateLimitTiers is the set of rate limit tiers applied to hosts based on
// their flap count. A host is placed in a tier by dividing its flap count by
// flapCountScale and indexing with the result.
var rateLimitTiers = []time.Duration{
	time.Second,
	time.Second * 5,
	time.Second * 30,
	time.Minute,
	time.Minute * 30,
	time.Hour,
}

// rateLimit returns the minimum interval between recorded reachability
// events for a host with the given flap count. Flap counts beyond the top
// tier stay in the top tier.
func rateLimit(flapCount int) time.Duration {
	tier := flapCount / flapCountScale

	if tier >= len(rateLimitTiers) {
		tier = len(rateLimitTiers) - 1
	}

	return rateLimitTiers[tier]
}

// cooldownFlapCount scales a host's all-time flap count down by the cooldown
// factor once at least one cooldown period has elapsed since its last flap.
// Fractional periods beyond the first are honored so the decay is smooth;
// before the first full period has passed the count is returned unchanged.
func cooldownFlapCount(now time.Time, flapCount int,
	lastFlap time.Time) int {

	timeSinceFlap := now.Sub(lastFlap)
	if timeSinceFlap < flapCountCooldownPeriod {
		return flapCount
	}

	cooldownPeriods := float64(timeSinceFlap) /
		float64(flapCountCooldownPeriod)

	effectiveFactor := math.Pow(flapCountCooldownFactor, cooldownPeriods)

	return int(float64(flapCount) * effectiveFactor)
}
