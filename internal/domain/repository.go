package domain

import "context"

// IntentionRepository persists focus sessions.
// Implementation: SQLCipher encrypted SQLite database.
type IntentionRepository interface {
	// CreateIntention inserts a new intention and returns it with its ID set.
	CreateIntention(ctx context.Context, in Intention) (Intention, error)

	// FindActiveIntention returns the intention with no ended-at, or nil.
	FindActiveIntention(ctx context.Context) (*Intention, error)

	// EndIntention sets ended-at and end-reason on the intention row.
	EndIntention(ctx context.Context, id int64, reason EndReason) error

	// AttachApps inserts intention apps (from-bundle preserved per entry).
	AttachApps(ctx context.Context, apps []IntentionApp) error

	// AttachURLs inserts intention URL patterns.
	AttachURLs(ctx context.Context, urls []IntentionURL) error

	// AttachBundles records which bundles were selected for the intention.
	AttachBundles(ctx context.Context, intentionID int64, bundleIDs []int64) error

	// AppsFor returns all apps attached to the intention.
	AppsFor(ctx context.Context, intentionID int64) ([]IntentionApp, error)

	// URLsFor returns all URL patterns attached to the intention.
	URLsFor(ctx context.Context, intentionID int64) ([]IntentionURL, error)

	// BundleIDsFor returns the bundle IDs selected for the intention.
	BundleIDsFor(ctx context.Context, intentionID int64) ([]int64, error)
}

// BundleRepository persists reusable allowance bundles.
type BundleRepository interface {
	// CreateBundle inserts a bundle with its apps and URL patterns.
	// Fails if a bundle with the same name already exists.
	CreateBundle(ctx context.Context, b Bundle) (Bundle, error)

	// GetBundleByName returns the bundle with the given name, or nil.
	GetBundleByName(ctx context.Context, name string) (*Bundle, error)

	// GetBundleByID returns the bundle with the given ID, or nil.
	GetBundleByID(ctx context.Context, id int64) (*Bundle, error)

	// ListBundles returns all bundles with members loaded.
	ListBundles(ctx context.Context) ([]Bundle, error)

	// DeleteBundle removes a bundle; member rows cascade.
	DeleteBundle(ctx context.Context, id int64) error
}

// AccessLogRepository is the append-only audit log.
type AccessLogRepository interface {
	// AppendAccess records one evaluation outcome.
	AppendAccess(ctx context.Context, entry AccessLogEntry) error

	// RecentAccess returns the newest entries, most recent first.
	RecentAccess(ctx context.Context, limit int) ([]AccessLogEntry, error)
}

// LearnedRuleRepository persists override-derived rules.
type LearnedRuleRepository interface {
	// AppendLearnedRule records a new rule. Append-only; recency wins
	// at lookup time.
	AppendLearnedRule(ctx context.Context, rule LearnedRule) error

	// LearnedRulesFor returns all rules for (kind, identifier),
	// most recent first.
	LearnedRulesFor(ctx context.Context, kind AccessKind, identifier string) ([]LearnedRule, error)
}

// HistoryRepository tracks intention-text usage for suggestions.
type HistoryRepository interface {
	// RecordEntered upserts the history row for text, bumping times-entered.
	RecordEntered(ctx context.Context, text string) error

	// RecordSelected upserts the history row for text, bumping times-selected.
	RecordSelected(ctx context.Context, text string) error

	// RecentHistory returns history items by last use, newest first.
	RecentHistory(ctx context.Context, limit int) ([]IntentionHistoryItem, error)
}

// Classifier is the semantic-classification extension point, queried
// only after every deterministic rule has missed and only when the
// intention has LLM filtering enabled. No implementation ships here.
type Classifier interface {
	// Classify returns whether the access fits the intention.
	Classify(ctx context.Context, kind AccessKind, identifier, intentionText string) (allowed bool, err error)
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// AppResolver maps a raw focus event to a stable app identity.
// Implementation: gopsutil process lookup.
type AppResolver interface {
	// ResolvePID returns the executable name for a focused process.
	ResolvePID(pid int) (identifier string, err error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}
