package decision

import (
	"context"
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
)

// Scorer ranks targets by expected throughput.
type Scorer struct {
	host     telemetry.Collector
	config   Config
	reserved sets.Set[string]
}

func NewScorer(host telemetry.Collector, config Config) *Scorer {
	return &Scorer{
		host:     host,
		config:   config,
		reserved: sets.New(config.ReservedTargets...),
	}
}

// Rank scores every eligible target and returns the best TopK, highest
// first. owned holds ids under the actor's control; they are never
// targets. A target whose estimates cannot be read is skipped.
func (s *Scorer) Rank(ctx context.Context, targets []apis.TargetState, skill int, owned sets.Set[string]) []apis.TargetScore {
	scores := make([]apis.TargetScore, 0, len(targets))
	for _, t := range targets {
		switch {
		case t.RequiredSkill > skill:
			continue
		case t.MaxYield <= 0:
			continue
		case s.reserved.Has(t.ID), owned.Has(t.ID):
			continue
		}

		sc, err := s.Score(ctx, t)
		if err != nil {
			klog.Warningf("Skipping %s in ranking: %v", t.ID, err)
			continue
		}
		scores = append(scores, sc)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Target < scores[j].Target
	})

	if s.config.TopK > 0 && len(scores) > s.config.TopK {
		scores = scores[:s.config.TopK]
	}
	// Targets that fell out of the ranking drop their series.
	targetScore.Reset()
	for _, sc := range scores {
		targetScore.WithLabelValues(sc.Target).Set(sc.Score)
	}
	return scores
}

// Score estimates one target. The stabilization time is charged once and
// amortized over an hour of harvesting so that targets needing long
// stabilization still compete with already-stable ones.
func (s *Scorer) Score(ctx context.Context, t apis.TargetState) (apis.TargetScore, error) {
	sc := apis.TargetScore{Target: t.ID}

	durations := make(map[constants.OperationKind]float64, len(constants.OperationKinds))
	longest := 0.0
	for _, k := range constants.OperationKinds {
		d, err := s.host.Duration(ctx, k, t.ID)
		if err != nil {
			return sc, fmt.Errorf("%s duration: %w", k, err)
		}
		durations[k] = d
		longest = max(longest, d)
	}
	if longest <= 0 {
		return sc, fmt.Errorf("no positive operation duration")
	}

	chance, err := s.host.SuccessChance(ctx, t.ID)
	if err != nil {
		return sc, fmt.Errorf("success chance: %w", err)
	}

	if effect := s.host.StabilizeEffect(); effect > 0 {
		sc.StabilizeTimeMs = t.IntegrityGap() / effect * durations[constants.Stabilize]
	}
	if t.Yield < t.MaxYield/2 {
		sc.RestoreTimeMs = s.config.RestoreTimeMultiplier * durations[constants.Restore]
	}

	sc.ThroughputPerMs = t.MaxYield * s.config.HarvestFraction * chance / longest
	sc.Score = sc.ThroughputPerMs / (1 + sc.StabilizeTimeMs/constants.OneHourMs)
	return sc, nil
}
