package client

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/tablerohq/tablero/pkg/api"
	"github.com/tablerohq/tablero/pkg/httputil"
	"github.com/tablerohq/tablero/pkg/transport"
)

// Login authenticates with the auth service. On success the credential
// store is fully populated (tokens, identity, roles, permissions, menus)
// and proactive renewal starts. On failure it returns false together with
// a message fit for showing to the user; it never returns an error and
// never triggers the refresh-retry path.
func (c *Client) Login(ctx context.Context, identifier, password string) (bool, string) {
	c.primeCSRF(ctx)

	body := api.LoginRequest{
		Identifier: identifier,
		Password:   password,
		DeviceID:   c.deviceID,
	}
	headers := map[string]string{transport.SkipRefreshHeader: "true"}

	var resp api.AuthResponse
	err := c.doJSON(ctx, http.MethodPost, c.authURL.JoinPath("auth", "login"), body, headers, &resp)
	if err != nil {
		c.observeLogin("error")
		msg := httputil.ErrorMessage(err)
		c.log.WithError(err).WithField("identifier", identifier).Warn("login failed")
		return false, msg
	}

	c.sessions.SetAccessToken(ctx, resp.AccessToken)
	c.sessions.SetCSRFToken(ctx, resp.CSRFToken)
	if resp.User != nil {
		c.sessions.SetUser(ctx, *resp.User)
	}
	// The login response also rotates the anti-forgery cookie; pick it up
	// in case it is newer than the body copy.
	c.csrf.Reconcile(ctx)
	c.logTokenExpiry(resp.AccessToken)

	if err := c.FetchSession(ctx); err != nil {
		c.observeLogin("error")
		return false, httputil.ErrorMessage(err)
	}

	c.observeLogin("ok")
	c.startRenewal()
	c.log.WithField("user", identifier).Info("login succeeded")
	return true, ""
}

// Logout ends the session. The logout call to the auth service is
// best-effort: a failure is logged but never blocks local cleanup. Local
// state (credential store and menu store) is cleared unconditionally.
// silent suppresses the user-facing confirmation.
func (c *Client) Logout(ctx context.Context, silent bool) {
	c.stopRenewal()

	c.primeCSRF(ctx)
	headers := map[string]string{transport.SkipRefreshHeader: "true"}
	err := c.doJSON(ctx, http.MethodPost, c.authURL.JoinPath("auth", "logout"), nil, headers, nil)
	if err != nil {
		c.log.WithError(err).Warn("logout request failed, clearing local state anyway")
	}

	c.sessions.Clear(ctx)
	c.menus.Clear(ctx)

	if c.metrics != nil {
		kind := "user"
		if silent {
			kind = "silent"
		}
		c.metrics.LogoutsTotal.WithLabelValues(kind).Inc()
	}
	if !silent {
		c.log.Info("signed out")
	}
}

// primeCSRF asks the auth service for a fresh anti-forgery token ahead of a
// state-changing auth call. Best-effort: deployments without the endpoint
// just proceed with the token already held, picked up via cookie
// reconciliation instead.
func (c *Client) primeCSRF(ctx context.Context) {
	headers := map[string]string{transport.SkipRefreshHeader: "true"}
	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.authURL.JoinPath("auth", "csrf"), nil, headers, &resp); err != nil {
		c.log.WithError(err).Debug("anti-forgery pre-flight unavailable")
		c.csrf.Reconcile(ctx)
		return
	}
	c.sessions.SetCSRFToken(ctx, resp.CSRFToken)
	c.csrf.Reconcile(ctx)
}

// FetchSession re-fetches identity, roles, permissions, and menus from the
// auth service. Any failure performs a silent logout so the store never
// holds a stale authenticated flag without a valid backing session.
func (c *Client) FetchSession(ctx context.Context) error {
	return c.fetchSession(ctx, false)
}

func (c *Client) fetchSession(ctx context.Context, skipRecovery bool) error {
	// Best-effort rotation pickup; a missing cookie just means we proceed
	// with the token already held.
	c.csrf.Reconcile(ctx)

	headers := map[string]string{}
	if skipRecovery {
		headers[transport.SkipRefreshHeader] = "true"
	}

	var resp api.SessionResponse
	err := c.doJSON(ctx, http.MethodGet, c.authURL.JoinPath("auth", "me"), nil, headers, &resp)
	if err != nil {
		c.observeSessionFetch("error")
		c.log.WithError(err).Warn("session fetch failed, clearing local state")
		c.silentLogout(ctx)
		return err
	}

	c.sessions.SetUser(ctx, resp.User)
	c.sessions.SetRoles(ctx, resp.EffectiveRoles())
	c.sessions.SetPermissions(ctx, resp.EffectivePermissions())
	c.sessions.SetMenus(ctx, resp.Menus)
	// The menu store mirrors the backend unconditionally: a session that
	// comes back with no menus must not keep serving yesterday's navigation.
	c.menus.SetMenus(ctx, resp.Menus)

	c.observeSessionFetch("ok")
	return nil
}

// RefreshCredentials implements transport.Refresher: it exchanges the
// current session for new tokens and stores them.
func (c *Client) RefreshCredentials(ctx context.Context, csrfToken string) error {
	headers := map[string]string{
		transport.SkipRefreshHeader: "true",
	}
	if csrfToken != "" {
		headers[transport.CSRFHeader] = csrfToken
	}

	var resp api.RefreshResponse
	err := c.doJSON(ctx, http.MethodPost, c.authURL.JoinPath("auth", "refresh-token"), nil, headers, &resp)
	if err != nil {
		return err
	}

	c.sessions.SetAccessToken(ctx, resp.AccessToken)
	c.sessions.SetCSRFToken(ctx, resp.CSRFToken)
	// The refresh response rotates the cookie too; reconcile so the store
	// converges on the newest value.
	c.csrf.Reconcile(ctx)
	c.logTokenExpiry(resp.AccessToken)
	return nil
}

// ResyncSession implements transport.Refresher. Recovery is disabled on
// this fetch: a 401 here means the fresh tokens are already bad, and
// another refresh attempt would loop.
func (c *Client) ResyncSession(ctx context.Context) error {
	return c.fetchSession(ctx, true)
}

// HandleSessionExpired implements transport.Refresher: a silent logout for
// the unrecoverable-refresh path.
func (c *Client) HandleSessionExpired(ctx context.Context) {
	c.silentLogout(ctx)
}

// silentLogout clears all local state without contacting the auth service
// and without user-facing notification, then informs the embedding
// application once via the session-expired handler.
func (c *Client) silentLogout(ctx context.Context) {
	wasAuthenticated := c.sessions.IsAuthenticated()

	c.stopRenewal()
	c.sessions.Clear(ctx)
	c.menus.Clear(ctx)

	if c.metrics != nil {
		c.metrics.LogoutsTotal.WithLabelValues("silent").Inc()
	}
	if wasAuthenticated && c.onSessionExpired != nil {
		c.onSessionExpired()
	}
}

func (c *Client) observeLogin(result string) {
	if c.metrics != nil {
		c.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (c *Client) observeSessionFetch(result string) {
	if c.metrics != nil {
		c.metrics.SessionFetchesTotal.WithLabelValues(result).Inc()
	}
}

// logTokenExpiry peeks at the access token's exp claim for diagnostics.
// The token is opaque to this client; when it happens to be a JWT the
// remaining validity is useful context for renewal logs. No verification
// is done or implied.
func (c *Client) logTokenExpiry(token string) {
	if token == "" {
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	c.log.WithFields(logrus.Fields{
		"expires_at": exp.Time.Format(time.RFC3339),
		"expires_in": time.Until(exp.Time).Round(time.Second).String(),
	}).Debug("access token validity")
}
