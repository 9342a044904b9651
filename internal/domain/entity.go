// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// AccessKind distinguishes app-focus events from URL navigations.
type AccessKind string

const (
	KindApp AccessKind = "app"
	KindURL AccessKind = "url"
)

// EndReason records why an intention ended.
type EndReason string

const (
	EndCompleted        EndReason = "completed"
	EndNewIntention     EndReason = "new-intention"
	EndChoseDistraction EndReason = "chose-distraction"
	EndCheckinContinue  EndReason = "checkin-continue"
)

// AllowReason explains why an access was allowed.
type AllowReason string

const (
	ReasonAlwaysAllowed AllowReason = "always-allowed"
	ReasonBundle        AllowReason = "bundle"
	ReasonExplicit      AllowReason = "explicit"
	ReasonConfig        AllowReason = "config"
	ReasonLearned       AllowReason = "learned"
	ReasonOverride      AllowReason = "override"
)

// Intention is a focus session declared by the user.
// DurationSeconds == 0 means unlimited (checkin-based).
type Intention struct {
	ID                  int64
	Text                string
	DurationSeconds     int
	StartedAt           time.Time
	EndedAt             *time.Time
	EndReason           EndReason
	LLMFilteringEnabled bool // false = strict mode
}

// Unlimited reports whether the intention has no time box.
func (i Intention) Unlimited() bool {
	return i.DurationSeconds <= 0
}

// ExpiresAt returns the deadline, or the zero time for unlimited intentions.
func (i Intention) ExpiresAt() time.Time {
	if i.Unlimited() {
		return time.Time{}
	}
	return i.StartedAt.Add(time.Duration(i.DurationSeconds) * time.Second)
}

// BundleApp identifies an application inside a bundle.
// Value type; equality by Identifier.
type BundleApp struct {
	Identifier  string
	DisplayName string
}

// Bundle is a reusable named group of allowances.
type Bundle struct {
	ID           int64
	Name         string
	Apps         []BundleApp
	URLPatterns  []string
	AllowAllApps bool
	AllowAllURLs bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AdminBundleName is the reserved allow-everything bundle materialized
// on first run and never duplicated (checked by name).
const AdminBundleName = "Admin"

// IntentionApp is an app attached to a specific intention, either
// entered ad-hoc (FromBundle nil) or materialized from a bundle.
type IntentionApp struct {
	ID          int64
	IntentionID int64
	Identifier  string
	DisplayName string
	FromBundle  *int64
}

// IntentionURL is a URL pattern attached to a specific intention.
type IntentionURL struct {
	ID          int64
	IntentionID int64
	Pattern     string
	FromBundle  *int64
}

// AccessLogEntry is an immutable audit record of one evaluation outcome.
type AccessLogEntry struct {
	ID             int64
	IntentionID    int64
	Timestamp      time.Time
	Kind           AccessKind
	Identifier     string
	WasAllowed     bool
	AllowedReason  AllowReason // empty when blocked
	WasOverride    bool
	AddedToLearned bool
}

// LearnedRule is a user-confirmed generalization of an override.
// IntentionPattern is a keyword signature of the intention text it was
// learned under; Identifier is an app id or a normalized domain.
type LearnedRule struct {
	ID               int64
	IntentionPattern string
	Kind             AccessKind
	Identifier       string
	Allowed          bool
	CreatedAt        time.Time
}

// IntentionHistoryItem aggregates usage per distinct intention text.
type IntentionHistoryItem struct {
	Text           string
	TimesEntered   int
	TimesSelected  int
	FirstEnteredAt time.Time
	LastUsedAt     time.Time
}

// Decision is the outcome of evaluating one access request.
type Decision struct {
	Allowed bool
	Reason  AllowReason // empty on default block
	Message string
}
