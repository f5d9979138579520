package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"zenspace/pkg/authflow"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 300 // seconds
)

// googleOAuth wraps the federated provider integration. The core treats it as
// an opaque redirect plus token exchange; only the asserted identity crosses
// into the reconciler.
type googleOAuth struct {
	oauth *oauth2.Config
}

func newGoogleOAuth(cfg Config) *googleOAuth {
	if !cfg.googleConfigured() {
		return nil
	}
	return &googleOAuth{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  googleAuthURL,
				TokenURL: googleTokenURL,
			},
		},
	}
}

func (a *api) googleStartHandler(c *gin.Context) {
	if a.google == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "google login is not configured"})
		return
	}
	// Random state nonce, checked on callback against this cookie.
	state := uuid.NewString()
	c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, a.google.oauth.AuthCodeURL(state))
}

type googleUserinfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (a *api) googleCallbackHandler(c *gin.Context) {
	if a.google == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "google login is not configured"})
		return
	}
	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || c.Query("state") != state {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", c.Request.TLS != nil, true)

	tok, err := a.google.oauth.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		a.log.Warn("google code exchange failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid google response"})
		return
	}

	info, err := a.fetchGoogleUserinfo(c, tok)
	if err != nil {
		a.log.Warn("google userinfo fetch failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid google response"})
		return
	}
	if info.Email == "" || info.Sub == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid google response"})
		return
	}

	user, err := a.reconciler.FederatedCallback(c.Request.Context(), authflow.FederatedIdentity{
		Email:   info.Email,
		Subject: info.Sub,
		Name:    info.Name,
	})
	if err != nil {
		a.serverError(c, "google callback failed", err)
		return
	}
	pair, err := a.orchestrator.IssueForUser(c.Request.Context(), user, deviceMeta(c))
	if err != nil {
		a.serverError(c, "token issuance failed", err)
		return
	}

	// Hand the result to the SPA via a redirect fragment the frontend decodes.
	payload, err := json.Marshal(gin.H{"user": userOut(user), "tokens": pair})
	if err != nil {
		a.serverError(c, "callback payload encoding failed", err)
		return
	}
	encoded := base64.URLEncoding.EncodeToString(payload)
	c.Redirect(http.StatusFound, a.cfg.FrontendOrigin+"/?auth="+encoded)
}

func (a *api) fetchGoogleUserinfo(c *gin.Context, tok *oauth2.Token) (*googleUserinfo, error) {
	client := a.google.oauth.Client(c.Request.Context(), tok)
	resp, err := client.Get(googleUserinfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var info googleUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}
