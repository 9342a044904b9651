package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/intentd/internal/domain"
)

// --- domain.IntentionRepository implementation ---

// CreateIntention inserts a new intention and returns it with its ID set.
func (s *Store) CreateIntention(ctx context.Context, in domain.Intention) (domain.Intention, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO intentions (text, duration_seconds, started_at, llm_filtering_enabled)
		VALUES (?, ?, ?, ?)`,
		in.Text, in.DurationSeconds, in.StartedAt.Unix(), boolInt(in.LLMFilteringEnabled))
	if err != nil {
		return domain.Intention{}, fmt.Errorf("insert intention: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Intention{}, err
	}
	in.ID = id
	return in, nil
}

// FindActiveIntention returns the intention with no ended-at, or nil.
// At most one row can be active (single-session invariant, enforced by
// the session manager's write path).
func (s *Store) FindActiveIntention(ctx context.Context) (*domain.Intention, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, duration_seconds, started_at, ended_at, end_reason, llm_filtering_enabled
		FROM intentions WHERE ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1`)

	in, err := scanIntention(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// EndIntention sets ended-at and end-reason on the intention row.
func (s *Store) EndIntention(ctx context.Context, id int64, reason domain.EndReason) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE intentions SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().Unix(), string(reason), id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("intention %d not active", id)
	}
	return nil
}

// AttachApps inserts intention apps.
func (s *Store) AttachApps(ctx context.Context, apps []domain.IntentionApp) error {
	for _, app := range apps {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO intention_apps (intention_id, identifier, display_name, from_bundle)
			VALUES (?, ?, ?, ?)`,
			app.IntentionID, app.Identifier, app.DisplayName, nullableID(app.FromBundle)); err != nil {
			return fmt.Errorf("attach app %q: %w", app.Identifier, err)
		}
	}
	return nil
}

// AttachURLs inserts intention URL patterns.
func (s *Store) AttachURLs(ctx context.Context, urls []domain.IntentionURL) error {
	for _, u := range urls {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO intention_urls (intention_id, pattern, from_bundle)
			VALUES (?, ?, ?)`,
			u.IntentionID, u.Pattern, nullableID(u.FromBundle)); err != nil {
			return fmt.Errorf("attach url %q: %w", u.Pattern, err)
		}
	}
	return nil
}

// AttachBundles records which bundles were selected for the intention.
func (s *Store) AttachBundles(ctx context.Context, intentionID int64, bundleIDs []int64) error {
	for _, bid := range bundleIDs {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO intention_bundles (intention_id, bundle_id) VALUES (?, ?)`,
			intentionID, bid); err != nil {
			return fmt.Errorf("attach bundle %d: %w", bid, err)
		}
	}
	return nil
}

// AppsFor returns all apps attached to the intention.
func (s *Store) AppsFor(ctx context.Context, intentionID int64) ([]domain.IntentionApp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intention_id, identifier, display_name, from_bundle
		FROM intention_apps WHERE intention_id = ?`, intentionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.IntentionApp
	for rows.Next() {
		var app domain.IntentionApp
		var fromBundle sql.NullInt64
		if err := rows.Scan(&app.ID, &app.IntentionID, &app.Identifier, &app.DisplayName, &fromBundle); err != nil {
			return nil, err
		}
		if fromBundle.Valid {
			app.FromBundle = &fromBundle.Int64
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// URLsFor returns all URL patterns attached to the intention.
func (s *Store) URLsFor(ctx context.Context, intentionID int64) ([]domain.IntentionURL, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intention_id, pattern, from_bundle
		FROM intention_urls WHERE intention_id = ?`, intentionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []domain.IntentionURL
	for rows.Next() {
		var u domain.IntentionURL
		var fromBundle sql.NullInt64
		if err := rows.Scan(&u.ID, &u.IntentionID, &u.Pattern, &fromBundle); err != nil {
			return nil, err
		}
		if fromBundle.Valid {
			u.FromBundle = &fromBundle.Int64
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// BundleIDsFor returns the bundle IDs selected for the intention.
func (s *Store) BundleIDsFor(ctx context.Context, intentionID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bundle_id FROM intention_bundles WHERE intention_id = ?`, intentionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- domain.AccessLogRepository implementation ---

// AppendAccess records one evaluation outcome.
func (s *Store) AppendAccess(ctx context.Context, entry domain.AccessLogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_log (intention_id, ts, kind, identifier, was_allowed, allowed_reason, was_override, added_to_learned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.IntentionID, ts.Unix(), string(entry.Kind), entry.Identifier,
		boolInt(entry.WasAllowed), nullableString(string(entry.AllowedReason)),
		boolInt(entry.WasOverride), boolInt(entry.AddedToLearned))
	return err
}

// RecentAccess returns the newest entries, most recent first.
func (s *Store) RecentAccess(ctx context.Context, limit int) ([]domain.AccessLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intention_id, ts, kind, identifier, was_allowed, allowed_reason, was_override, added_to_learned
		FROM access_log ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AccessLogEntry
	for rows.Next() {
		var e domain.AccessLogEntry
		var ts int64
		var kind string
		var allowed, override, learned int
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.IntentionID, &ts, &kind, &e.Identifier, &allowed, &reason, &override, &learned); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Kind = domain.AccessKind(kind)
		e.WasAllowed = allowed != 0
		e.WasOverride = override != 0
		e.AddedToLearned = learned != 0
		if reason.Valid {
			e.AllowedReason = domain.AllowReason(reason.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- domain.LearnedRuleRepository implementation ---

// AppendLearnedRule records a new rule.
func (s *Store) AppendLearnedRule(ctx context.Context, rule domain.LearnedRule) error {
	created := rule.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_rules (intention_pattern, kind, identifier, allowed, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rule.IntentionPattern, string(rule.Kind), rule.Identifier, boolInt(rule.Allowed), created.Unix())
	return err
}

// LearnedRulesFor returns all rules for (kind, identifier), most recent
// first. Ties on created_at resolve by insertion order.
func (s *Store) LearnedRulesFor(ctx context.Context, kind domain.AccessKind, identifier string) ([]domain.LearnedRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intention_pattern, kind, identifier, allowed, created_at
		FROM learned_rules WHERE kind = ? AND identifier = ?
		ORDER BY created_at DESC, id DESC`, string(kind), identifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.LearnedRule
	for rows.Next() {
		var r domain.LearnedRule
		var k string
		var allowed int
		var created int64
		if err := rows.Scan(&r.ID, &r.IntentionPattern, &k, &r.Identifier, &allowed, &created); err != nil {
			return nil, err
		}
		r.Kind = domain.AccessKind(k)
		r.Allowed = allowed != 0
		r.CreatedAt = time.Unix(created, 0)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func scanIntention(row rowScanner) (domain.Intention, error) {
	var in domain.Intention
	var startedAt int64
	var endedAt sql.NullInt64
	var endReason sql.NullString
	var llm int
	err := row.Scan(&in.ID, &in.Text, &in.DurationSeconds, &startedAt, &endedAt, &endReason, &llm)
	if err != nil {
		return in, err
	}
	in.StartedAt = time.Unix(startedAt, 0)
	in.LLMFilteringEnabled = llm != 0
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		in.EndedAt = &t
	}
	if endReason.Valid {
		in.EndReason = domain.EndReason(endReason.String)
	}
	return in, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure Store implements the session-side repositories.
var (
	_ domain.IntentionRepository   = (*Store)(nil)
	_ domain.AccessLogRepository   = (*Store)(nil)
	_ domain.LearnedRuleRepository = (*Store)(nil)
)
