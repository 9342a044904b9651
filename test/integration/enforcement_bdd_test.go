//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/intentd/internal/config"
	"github.com/eliteGoblin/focusd/intentd/internal/domain"
	"github.com/eliteGoblin/focusd/intentd/internal/infra"
	"github.com/eliteGoblin/focusd/intentd/internal/server"
	"github.com/eliteGoblin/focusd/intentd/internal/session"
	"github.com/eliteGoblin/focusd/intentd/internal/usecase"
)

var _ = Describe("Enforcement Pipeline", func() {
	var (
		ctx       context.Context
		store     *infra.Store
		cfg       config.AppConfig
		sessions  *session.Manager
		resolver  *usecase.Resolver
		companion *server.Companion
		ts        *httptest.Server
	)

	postJSON := func(path string, body any) (*http.Response, map[string]any) {
		buf, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(buf))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var decoded map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
		return resp, decoded
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger := zap.NewNop()

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewStore(GinkgoT().TempDir(), key)
		Expect(err).NotTo(HaveOccurred())

		cfg = config.DefaultAppConfig()
		bundles := config.BundleConfig{Bundles: []config.BundleDef{
			{
				Name:        "Deep Work",
				Apps:        []config.AppRef{{ID: "Obsidian", Name: "Obsidian"}},
				URLPatterns: []string{"github.com/*"},
			},
		}}
		Expect(usecase.SyncBundles(ctx, store, bundles, logger)).To(Succeed())

		sessions = session.NewManager(cfg, store, store, store, logger)
		resolver = usecase.NewResolver(config.DefaultRulesConfig(), store, store, store, nil, logger)
		companion = server.NewCompanion("integration-test", cfg, sessions, resolver, store, store, logger)
		ts = httptest.NewServer(companion.Handler())
	})

	AfterEach(func() {
		ts.Close()
		store.Close()
	})

	Describe("Session with a bundle", func() {
		It("allows bundle URL patterns and blocks everything else", func() {
			_, err := sessions.Start(ctx, session.StartRequest{
				Text:        "write design doc",
				Duration:    25 * time.Minute,
				BundleNames: []string{"Deep Work"},
			})
			Expect(err).NotTo(HaveOccurred())

			// Bundle globs are anchored, so the extension sends the
			// URL already stripped of its scheme.
			resp, body := postJSON("/check-url", map[string]any{"url": "github.com/org/repo"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["allowed"]).To(BeTrue())
			Expect(body["reason"]).To(Equal("bundle"))

			resp, body = postJSON("/check-url", map[string]any{"url": "https://twitter.com/home"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["allowed"]).To(BeFalse())

			// Decisions are audited against the session.
			entries, err := store.RecentAccess(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
		})
	})

	Describe("Break-glass override", func() {
		learnOverride := func(url string) {
			resp, body := postJSON("/override", map[string]any{
				"url":    url,
				"phrase": cfg.BreakGlassPhrase,
				"learn":  true,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["success"]).To(BeTrue())
		}

		It("rejects an incorrect phrase without learning anything", func() {
			_, err := sessions.Start(ctx, session.StartRequest{Text: "write design doc"})
			Expect(err).NotTo(HaveOccurred())

			resp, body := postJSON("/override", map[string]any{
				"url":    "https://reddit.com/r/golang",
				"phrase": "open sesame",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(body["success"]).To(BeFalse())
			Expect(body["error"]).To(Equal("Incorrect phrase"))

			rules, err := store.LearnedRulesFor(ctx, domain.KindURL, "reddit.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(BeEmpty())
		})

		It("learns a rule that survives into a later similar session", func() {
			_, err := sessions.Start(ctx, session.StartRequest{
				Text:                "research golang concurrency",
				LLMFilteringEnabled: true,
			})
			Expect(err).NotTo(HaveOccurred())

			// Blocked before the override.
			_, body := postJSON("/check-url", map[string]any{"url": "https://reddit.com/r/golang"})
			Expect(body["allowed"]).To(BeFalse())

			learnOverride("https://www.reddit.com/r/golang")

			// A fresh session with similar wording picks the rule up
			// from storage.
			Expect(sessions.End(ctx, domain.EndCompleted)).To(Succeed())
			_, err = sessions.Start(ctx, session.StartRequest{
				Text:                "more golang concurrency research",
				LLMFilteringEnabled: true,
			})
			Expect(err).NotTo(HaveOccurred())

			_, body = postJSON("/check-url", map[string]any{"url": "https://reddit.com/r/programming"})
			Expect(body["allowed"]).To(BeTrue())
			Expect(body["reason"]).To(Equal("learned"))
		})

		It("does not apply a learned rule to an unrelated intention", func() {
			_, err := sessions.Start(ctx, session.StartRequest{
				Text:                "research golang concurrency",
				LLMFilteringEnabled: true,
			})
			Expect(err).NotTo(HaveOccurred())
			learnOverride("https://reddit.com/r/golang")

			Expect(sessions.End(ctx, domain.EndCompleted)).To(Succeed())
			_, err = sessions.Start(ctx, session.StartRequest{
				Text:                "file my tax return",
				LLMFilteringEnabled: true,
			})
			Expect(err).NotTo(HaveOccurred())

			_, body := postJSON("/check-url", map[string]any{"url": "https://reddit.com/r/golang"})
			Expect(body["allowed"]).To(BeFalse())
		})
	})

	Describe("Crash recovery", func() {
		It("resumes an unexpired session from storage", func() {
			started, err := sessions.Start(ctx, session.StartRequest{
				Text:     "write design doc",
				Duration: time.Hour,
			})
			Expect(err).NotTo(HaveOccurred())

			// Simulate a restart: a fresh manager over the same store.
			fresh := session.NewManager(cfg, store, store, store, zap.NewNop())
			Expect(fresh.Resume(ctx)).To(Succeed())

			snap := fresh.Snapshot()
			Expect(snap.State).To(Equal(session.StateActive))
			Expect(snap.Intention.ID).To(Equal(started.ID))
		})
	})
})
