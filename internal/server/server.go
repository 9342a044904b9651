// Package server implements the loopback companion protocol consumed
// by the browser extension. Plain request/response over local-only
// HTTP; every response carries permissive CORS headers and closes the
// connection.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/intentd/internal/config"
	"github.com/eliteGoblin/focusd/intentd/internal/domain"
	"github.com/eliteGoblin/focusd/intentd/internal/match"
	"github.com/eliteGoblin/focusd/intentd/internal/session"
	"github.com/eliteGoblin/focusd/intentd/internal/usecase"
)

// Companion serves the browser-side collaborator.
type Companion struct {
	version  string
	cfg      config.AppConfig
	sessions *session.Manager
	resolver *usecase.Resolver
	access   domain.AccessLogRepository
	learned  domain.LearnedRuleRepository
	logger   *zap.Logger

	srv *http.Server
}

// NewCompanion creates the companion server.
func NewCompanion(
	version string,
	cfg config.AppConfig,
	sessions *session.Manager,
	resolver *usecase.Resolver,
	access domain.AccessLogRepository,
	learned domain.LearnedRuleRepository,
	logger *zap.Logger,
) *Companion {
	return &Companion{
		version:  version,
		cfg:      cfg,
		sessions: sessions,
		resolver: resolver,
		access:   access,
		learned:  learned,
		logger:   logger,
	}
}

// Handler returns the HTTP handler (exported for tests).
func (c *Companion) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/intention", c.handleIntention)
	mux.HandleFunc("/check-url", c.handleCheckURL)
	mux.HandleFunc("/override", c.handleOverride)
	mux.HandleFunc("/end-intention", c.handleEndIntention)
	return c.wrap(mux)
}

// ListenAndServe binds to loopback only and serves until ctx is done.
func (c *Companion) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", c.cfg.CompanionPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	c.srv = &http.Server{Handler: c.Handler()}
	c.srv.SetKeepAlivesEnabled(false)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.srv.Shutdown(shutdownCtx)
	}()

	c.logger.Info("companion server listening", zap.String("addr", addr))
	if err := c.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// wrap applies CORS headers, closes the connection after each
// response, and answers preflight requests for every route.
func (c *Companion) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Connection", "close")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Companion) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": c.version,
	})
}

func (c *Companion) handleIntention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := c.sessions.Snapshot()
	if snap.Intention == nil {
		c.writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]any{
		"active":              true,
		"text":                snap.Intention.Text,
		"remaining":           snap.RemainingSeconds,
		"llmFilteringEnabled": snap.Intention.LLMFilteringEnabled,
	})
}

type checkURLRequest struct {
	URL string `json:"url"`
}

func (c *Companion) handleCheckURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		c.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req checkURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		c.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap := c.sessions.Snapshot()
	decision := c.resolver.Evaluate(r.Context(), domain.KindURL, req.URL, "", snap.Intention)
	if snap.Intention != nil {
		c.resolver.LogAccess(r.Context(), c.access, snap.Intention.ID, domain.KindURL, req.URL, decision)
	}

	c.writeJSON(w, http.StatusOK, map[string]any{
		"allowed": decision.Allowed,
		"reason":  string(decision.Reason),
		"message": decision.Message,
	})
}

type overrideRequest struct {
	URL    string `json:"url"`
	Phrase string `json:"phrase"`
	Learn  bool   `json:"learn"`
}

// handleOverride is the break-glass flow: the exact configured phrase
// unlocks the URL and optionally generalizes the choice into a learned
// rule keyed by the intention's keyword signature and the URL's
// normalized domain.
func (c *Companion) handleOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		c.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		c.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Phrase != c.cfg.BreakGlassPhrase {
		c.writeJSON(w, http.StatusForbidden, map[string]any{
			"success": false,
			"error":   "Incorrect phrase",
		})
		return
	}

	snap := c.sessions.Snapshot()
	if snap.Intention == nil {
		c.writeError(w, http.StatusBadRequest, "no active intention")
		return
	}

	if req.Learn {
		rule := domain.LearnedRule{
			IntentionPattern: match.KeywordSignature(snap.Intention.Text),
			Kind:             domain.KindURL,
			Identifier:       match.DomainOf(req.URL),
			Allowed:          true,
		}
		if err := c.learned.AppendLearnedRule(r.Context(), rule); err != nil {
			c.logger.Warn("failed to persist learned rule", zap.Error(err))
			req.Learn = false
		}
	}

	entry := domain.AccessLogEntry{
		IntentionID:    snap.Intention.ID,
		Kind:           domain.KindURL,
		Identifier:     req.URL,
		WasAllowed:     true,
		AllowedReason:  domain.ReasonOverride,
		WasOverride:    true,
		AddedToLearned: req.Learn,
	}
	if err := c.access.AppendAccess(r.Context(), entry); err != nil {
		c.logger.Warn("failed to log override", zap.Error(err))
	}

	c.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (c *Companion) handleEndIntention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		c.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := c.sessions.End(r.Context(), domain.EndNewIntention); err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (c *Companion) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (c *Companion) writeError(w http.ResponseWriter, status int, msg string) {
	c.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
