// Package usecase contains application business logic.
package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/intentd/internal/config"
	"github.com/eliteGoblin/focusd/intentd/internal/domain"
	"github.com/eliteGoblin/focusd/intentd/internal/match"
)

const (
	msgStrictMode    = "strict mode"
	msgNotRecognized = "not recognized for this intention"
)

// Resolver is the decision engine: an ordered policy pipeline deciding
// allow/block for an app or URL against the active intention.
//
// Evaluate is a pure read path. It performs no logging to the access
// log, no persistence and no UI triggering; callers log outcomes via
// LogAccess after receiving a result.
type Resolver struct {
	rules      config.RulesConfig
	intentions domain.IntentionRepository
	bundles    domain.BundleRepository
	learned    domain.LearnedRuleRepository
	classifier domain.Classifier // optional; nil disables semantic classification
	logger     *zap.Logger
}

// NewResolver creates a decision engine over the given data sources.
// classifier may be nil.
func NewResolver(
	rules config.RulesConfig,
	intentions domain.IntentionRepository,
	bundles domain.BundleRepository,
	learned domain.LearnedRuleRepository,
	classifier domain.Classifier,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		rules:      rules,
		intentions: intentions,
		bundles:    bundles,
		learned:    learned,
		classifier: classifier,
		logger:     logger,
	}
}

// Evaluate classifies one access request. Steps run strictly in order;
// the first applicable step wins. With no active intention there is
// nothing to enforce against, so the request is allowed outright.
//
// Repository read failures degrade to "no match" and the pipeline
// continues: enforcement availability is not safety-critical.
func (r *Resolver) Evaluate(ctx context.Context, kind domain.AccessKind, identifier, displayName string, intention *domain.Intention) domain.Decision {
	if intention == nil {
		return domain.Decision{Allowed: true, Reason: domain.ReasonAlwaysAllowed}
	}

	// 1. Always-allow list.
	if r.inAlwaysList(kind, identifier, r.rules.AlwaysAllowedApps, r.rules.AlwaysAllowedURLs) {
		return domain.Decision{Allowed: true, Reason: domain.ReasonAlwaysAllowed}
	}

	// 2. Always-block list. Precedes the explicit intention list on
	// purpose: an always-blocked identifier loses even when attached
	// to the intention.
	if r.inAlwaysList(kind, identifier, r.rules.AlwaysBlockedApps, r.rules.AlwaysBlockedURLs) {
		return domain.Decision{Allowed: false, Message: "always blocked"}
	}

	// 3. Allow-all bundle check.
	if r.hasAllowAllBundle(ctx, kind, intention.ID) {
		return domain.Decision{Allowed: true, Reason: domain.ReasonBundle}
	}

	// 4. Explicit intention list.
	if d, ok := r.matchExplicit(ctx, kind, identifier, intention.ID); ok {
		return d
	}

	// 5. Strict-mode gate.
	if !intention.LLMFilteringEnabled {
		return domain.Decision{Allowed: false, Message: msgStrictMode}
	}

	// 6. Config intention rules.
	if r.matchConfigRules(kind, identifier, intention.Text) {
		return domain.Decision{Allowed: true, Reason: domain.ReasonConfig}
	}

	// 7. Learned rules. URL rules are keyed by normalized domain.
	if d, ok := r.matchLearned(ctx, kind, identifier, intention.Text); ok {
		return d
	}

	// Classifier extension point: consulted only after every
	// deterministic rule has missed.
	if r.classifier != nil {
		allowed, err := r.classifier.Classify(ctx, kind, identifier, intention.Text)
		if err != nil {
			r.logger.Warn("classifier failed, falling through to default",
				zap.String("identifier", identifier),
				zap.Error(err))
		} else if allowed {
			return domain.Decision{Allowed: true, Reason: domain.ReasonConfig}
		}
	}

	// 8. Default: block with no reason.
	return domain.Decision{Allowed: false, Message: msgNotRecognized}
}

// LogAccess appends the audit entry for a decision the caller received
// from Evaluate. Kept separate so the engine itself stays side-effect
// free.
func (r *Resolver) LogAccess(ctx context.Context, log domain.AccessLogRepository, intentionID int64, kind domain.AccessKind, identifier string, d domain.Decision) {
	err := log.AppendAccess(ctx, domain.AccessLogEntry{
		IntentionID:   intentionID,
		Kind:          kind,
		Identifier:    identifier,
		WasAllowed:    d.Allowed,
		AllowedReason: d.Reason,
	})
	if err != nil {
		r.logger.Warn("failed to append access log",
			zap.String("identifier", identifier),
			zap.Error(err))
	}
}

func (r *Resolver) inAlwaysList(kind domain.AccessKind, identifier string, apps, urls []string) bool {
	if kind == domain.KindApp {
		for _, a := range apps {
			if a == identifier {
				return true
			}
		}
		return false
	}
	for _, pattern := range urls {
		if match.URLContains(pattern, identifier) {
			return true
		}
	}
	return false
}

func (r *Resolver) hasAllowAllBundle(ctx context.Context, kind domain.AccessKind, intentionID int64) bool {
	ids, err := r.intentions.BundleIDsFor(ctx, intentionID)
	if err != nil {
		r.logger.Warn("failed to load intention bundles", zap.Error(err))
		return false
	}
	for _, id := range ids {
		b, err := r.bundles.GetBundleByID(ctx, id)
		if err != nil || b == nil {
			continue
		}
		if (kind == domain.KindApp && b.AllowAllApps) || (kind == domain.KindURL && b.AllowAllURLs) {
			return true
		}
	}
	return false
}

// matchExplicit checks the intention's attached apps/URLs. Apps match
// by exact identifier. URLs materialized from a bundle keep the
// bundle's authoritative glob semantics; ad-hoc URLs use the lax
// substring containment the user typed them under.
func (r *Resolver) matchExplicit(ctx context.Context, kind domain.AccessKind, identifier string, intentionID int64) (domain.Decision, bool) {
	if kind == domain.KindApp {
		apps, err := r.intentions.AppsFor(ctx, intentionID)
		if err != nil {
			r.logger.Warn("failed to load intention apps", zap.Error(err))
			return domain.Decision{}, false
		}
		for _, app := range apps {
			if app.Identifier == identifier {
				return domain.Decision{Allowed: true, Reason: reasonFor(app.FromBundle)}, true
			}
		}
		return domain.Decision{}, false
	}

	urls, err := r.intentions.URLsFor(ctx, intentionID)
	if err != nil {
		r.logger.Warn("failed to load intention urls", zap.Error(err))
		return domain.Decision{}, false
	}
	for _, u := range urls {
		var matched bool
		if u.FromBundle != nil {
			matched = match.Glob(u.Pattern, identifier)
		} else {
			matched = match.URLContains(u.Pattern, identifier)
		}
		if matched {
			return domain.Decision{Allowed: true, Reason: reasonFor(u.FromBundle)}, true
		}
	}
	return domain.Decision{}, false
}

func (r *Resolver) matchConfigRules(kind domain.AccessKind, identifier, intentionText string) bool {
	for _, rule := range r.rules.IntentionRules {
		if !match.Keyword(rule.Pattern, intentionText) {
			continue
		}
		if kind == domain.KindApp {
			for _, a := range rule.AllowApps {
				if a == identifier {
					return true
				}
			}
		} else {
			for _, u := range rule.AllowURLs {
				if match.URLContains(u, identifier) {
					return true
				}
			}
		}
	}
	return false
}

// matchLearned looks up the most recent learned rule for the
// identifier whose stored intention pattern matches the current
// intention text.
func (r *Resolver) matchLearned(ctx context.Context, kind domain.AccessKind, identifier, intentionText string) (domain.Decision, bool) {
	key := identifier
	if kind == domain.KindURL {
		key = match.DomainOf(identifier)
	}

	rules, err := r.learned.LearnedRulesFor(ctx, kind, key)
	if err != nil {
		r.logger.Warn("failed to load learned rules", zap.Error(err))
		return domain.Decision{}, false
	}

	// Rules arrive most recent first; the first pattern match wins.
	for _, rule := range rules {
		if !match.Keyword(rule.IntentionPattern, intentionText) {
			continue
		}
		if rule.Allowed {
			return domain.Decision{Allowed: true, Reason: domain.ReasonLearned}, true
		}
		return domain.Decision{Allowed: false, Message: "blocked by learned rule"}, true
	}
	return domain.Decision{}, false
}

func reasonFor(fromBundle *int64) domain.AllowReason {
	if fromBundle != nil {
		return domain.ReasonBundle
	}
	return domain.ReasonExplicit
}
