package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/intentd/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)

	s, err := NewStore(t.TempDir(), key)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIntentionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.FindActiveIntention(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	in, err := s.CreateIntention(ctx, domain.Intention{
		Text:                "write design doc",
		DurationSeconds:     1500,
		StartedAt:           time.Now(),
		LLMFilteringEnabled: true,
	})
	require.NoError(t, err)
	require.NotZero(t, in.ID)

	active, err = s.FindActiveIntention(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, in.ID, active.ID)
	assert.Equal(t, "write design doc", active.Text)
	assert.Equal(t, 1500, active.DurationSeconds)
	assert.True(t, active.LLMFilteringEnabled)
	assert.Nil(t, active.EndedAt)

	require.NoError(t, s.EndIntention(ctx, in.ID, domain.EndCompleted))

	active, err = s.FindActiveIntention(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	// Ending an already-ended intention reports the conflict.
	assert.Error(t, s.EndIntention(ctx, in.ID, domain.EndCompleted))
}

func TestAttachAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in, err := s.CreateIntention(ctx, domain.Intention{Text: "deep work", StartedAt: time.Now()})
	require.NoError(t, err)

	bundleID := int64(7)
	require.NoError(t, s.AttachApps(ctx, []domain.IntentionApp{
		{IntentionID: in.ID, Identifier: "Terminal", DisplayName: "Terminal"},
		{IntentionID: in.ID, Identifier: "Obsidian", DisplayName: "Obsidian", FromBundle: &bundleID},
	}))
	require.NoError(t, s.AttachURLs(ctx, []domain.IntentionURL{
		{IntentionID: in.ID, Pattern: "docs.google.com"},
		{IntentionID: in.ID, Pattern: "github.com/*", FromBundle: &bundleID},
	}))
	require.NoError(t, s.AttachBundles(ctx, in.ID, []int64{bundleID}))

	apps, err := s.AppsFor(ctx, in.ID)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Nil(t, apps[0].FromBundle)
	require.NotNil(t, apps[1].FromBundle)
	assert.Equal(t, bundleID, *apps[1].FromBundle)

	urls, err := s.URLsFor(ctx, in.ID)
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, "docs.google.com", urls[0].Pattern)
	assert.Nil(t, urls[0].FromBundle)
	require.NotNil(t, urls[1].FromBundle)

	ids, err := s.BundleIDsFor(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{bundleID}, ids)
}

func TestBundleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.CreateBundle(ctx, domain.Bundle{
		Name: "Deep Work",
		Apps: []domain.BundleApp{
			{Identifier: "Obsidian", DisplayName: "Obsidian"},
			{Identifier: "Terminal", DisplayName: "Terminal"},
		},
		URLPatterns: []string{"github.com/*", "*.stackoverflow.com"},
	})
	require.NoError(t, err)
	require.NotZero(t, b.ID)

	got, err := s.GetBundleByName(ctx, "Deep Work")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, b.Apps, got.Apps)
	assert.Equal(t, b.URLPatterns, got.URLPatterns)
	assert.False(t, got.AllowAllApps)
	assert.False(t, got.AllowAllURLs)

	byID, err := s.GetBundleByID(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, got.Name, byID.Name)

	missing, err := s.GetBundleByName(ctx, "Nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBundleNameUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBundle(ctx, domain.Bundle{Name: "Deep Work"})
	require.NoError(t, err)
	_, err = s.CreateBundle(ctx, domain.Bundle{Name: "Deep Work"})
	assert.Error(t, err)
}

func TestDeleteBundleCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.CreateBundle(ctx, domain.Bundle{
		Name:        "Deep Work",
		Apps:        []domain.BundleApp{{Identifier: "Obsidian"}},
		URLPatterns: []string{"github.com/*"},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteBundle(ctx, b.ID))

	got, err := s.GetBundleByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Members went with the bundle: recreating under the same name
	// starts empty.
	b2, err := s.CreateBundle(ctx, domain.Bundle{Name: "Deep Work"})
	require.NoError(t, err)
	got, err = s.GetBundleByID(ctx, b2.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Apps)
	assert.Empty(t, got.URLPatterns)
}

func TestListBundlesOrderedByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Writing", "Admin", "Deep Work"} {
		_, err := s.CreateBundle(ctx, domain.Bundle{Name: name})
		require.NoError(t, err)
	}

	bundles, err := s.ListBundles(ctx)
	require.NoError(t, err)
	require.Len(t, bundles, 3)
	assert.Equal(t, "Admin", bundles[0].Name)
	assert.Equal(t, "Deep Work", bundles[1].Name)
	assert.Equal(t, "Writing", bundles[2].Name)
}

func TestLearnedRulesMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.AppendLearnedRule(ctx, domain.LearnedRule{
		IntentionPattern: "design|write",
		Kind:             domain.KindURL,
		Identifier:       "reddit.com",
		Allowed:          false,
		CreatedAt:        base,
	}))
	require.NoError(t, s.AppendLearnedRule(ctx, domain.LearnedRule{
		IntentionPattern: "design|write",
		Kind:             domain.KindURL,
		Identifier:       "reddit.com",
		Allowed:          true,
		CreatedAt:        base.Add(time.Minute),
	}))
	// Different identifier must not bleed into the lookup.
	require.NoError(t, s.AppendLearnedRule(ctx, domain.LearnedRule{
		IntentionPattern: "design|write",
		Kind:             domain.KindURL,
		Identifier:       "news.ycombinator.com",
		Allowed:          true,
		CreatedAt:        base.Add(2 * time.Minute),
	}))

	rules, err := s.LearnedRulesFor(ctx, domain.KindURL, "reddit.com")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.True(t, rules[0].Allowed, "most recent rule first")
	assert.False(t, rules[1].Allowed)
}

func TestLearnedRulesTieBreakOnInsertOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now()
	for _, allowed := range []bool{false, true} {
		require.NoError(t, s.AppendLearnedRule(ctx, domain.LearnedRule{
			IntentionPattern: "write",
			Kind:             domain.KindApp,
			Identifier:       "Slack",
			Allowed:          allowed,
			CreatedAt:        at,
		}))
	}

	rules, err := s.LearnedRulesFor(ctx, domain.KindApp, "Slack")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.True(t, rules[0].Allowed, "later insert wins the tie")
}

func TestAccessLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAccess(ctx, domain.AccessLogEntry{
		IntentionID: 1,
		Kind:        domain.KindURL,
		Identifier:  "twitter.com/home",
		WasAllowed:  false,
		Timestamp:   time.Now().Add(-time.Minute),
	}))
	require.NoError(t, s.AppendAccess(ctx, domain.AccessLogEntry{
		IntentionID:    1,
		Kind:           domain.KindURL,
		Identifier:     "reddit.com",
		WasAllowed:     true,
		AllowedReason:  domain.ReasonOverride,
		WasOverride:    true,
		AddedToLearned: true,
	}))

	entries, err := s.RecentAccess(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "reddit.com", entries[0].Identifier)
	assert.True(t, entries[0].WasOverride)
	assert.True(t, entries[0].AddedToLearned)
	assert.Equal(t, domain.ReasonOverride, entries[0].AllowedReason)

	assert.Equal(t, "twitter.com/home", entries[1].Identifier)
	assert.False(t, entries[1].WasAllowed)
	assert.Equal(t, domain.AllowReason(""), entries[1].AllowedReason)
}

func TestHistoryUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEntered(ctx, "write design doc"))
	require.NoError(t, s.RecordEntered(ctx, "write design doc"))
	require.NoError(t, s.RecordSelected(ctx, "write design doc"))
	require.NoError(t, s.RecordSelected(ctx, "review PRs"))

	items, err := s.RecentHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byText := map[string]domain.IntentionHistoryItem{}
	for _, it := range items {
		byText[it.Text] = it
	}
	assert.Equal(t, 2, byText["write design doc"].TimesEntered)
	assert.Equal(t, 1, byText["write design doc"].TimesSelected)
	assert.Equal(t, 1, byText["review PRs"].TimesSelected)
}

func TestStoreReopensWithSameKey(t *testing.T) {
	dir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)
	ctx := context.Background()

	s, err := NewStore(dir, key)
	require.NoError(t, err)
	_, err = s.CreateIntention(ctx, domain.Intention{Text: "persisted", StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := NewStore(dir, key)
	require.NoError(t, err)
	defer s2.Close()

	active, err := s2.FindActiveIntention(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "persisted", active.Text)
}
