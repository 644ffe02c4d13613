package calculator

import (
	"fmt"
	"strings"
	"time"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// ChangeMatcher decides when a change counts as delivered
type ChangeMatcher interface {
	Resolve(change domain.NormalizedEvent, deployments []domain.NormalizedEvent) (time.Time, bool)
}

// ResolvedAtMatcher uses the change's own resolution timestamp
type ResolvedAtMatcher struct{}

func (ResolvedAtMatcher) Resolve(change domain.NormalizedEvent, _ []domain.NormalizedEvent) (time.Time, bool) {
	if change.ResolvedAt == nil {
		return time.Time{}, false
	}
	return *change.ResolvedAt, true
}

// DeploymentPrefixMatcher resolves a change at the earliest non-failed
// deployment, at or after the change, whose ref or id starts with the
// change's ref (or id when the change has no ref).
type DeploymentPrefixMatcher struct{}

func (DeploymentPrefixMatcher) Resolve(change domain.NormalizedEvent, deployments []domain.NormalizedEvent) (time.Time, bool) {
	key := change.Ref
	if key == "" {
		key = change.ID
	}
	if key == "" {
		return time.Time{}, false
	}

	var earliest time.Time
	found := false
	for _, d := range deployments {
		if d.Outcome == domain.OutcomeFailure || d.OccurredAt.Before(change.OccurredAt) {
			continue
		}
		if !hasPrefix(d.Ref, key) && !hasPrefix(d.ID, key) {
			continue
		}
		if !found || d.OccurredAt.Before(earliest) {
			earliest = d.OccurredAt
			found = true
		}
	}
	return earliest, found
}

func hasPrefix(s, prefix string) bool {
	return s != "" && strings.HasPrefix(s, prefix)
}

// MatcherFor returns the matcher registered under name; empty selects ResolvedAtMatcher
func MatcherFor(name string) (ChangeMatcher, error) {
	switch name {
	case "", domain.MatcherResolvedAt:
		return ResolvedAtMatcher{}, nil
	case domain.MatcherDeploymentPrefix:
		return DeploymentPrefixMatcher{}, nil
	}
	return nil, fmt.Errorf("unknown lead time matcher %q", name)
}
