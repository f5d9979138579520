package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zenspace/models"
	"zenspace/pkg/aibot"
	"zenspace/pkg/authflow"
	"zenspace/pkg/token"
)

// api bundles the injected dependencies for the HTTP handlers.
type api struct {
	cfg          Config
	log          *zap.Logger
	users        authflow.UserStore
	chats        chatStore
	analytics    analyticsStore
	reconciler   *authflow.Reconciler
	orchestrator *authflow.Orchestrator
	codec        *token.Codec
	bot          *aibot.Client
	google       *googleOAuth
}

func setupRoutes(r *gin.Engine, a *api) {
	r.Use(corsMiddleware(a.cfg.FrontendOrigin))

	r.GET("/api/health", a.healthHandler)

	auth := r.Group("/api/auth")
	auth.POST("/signup", a.signupHandler)
	auth.POST("/login", a.loginHandler)
	auth.POST("/refresh", a.refreshHandler)
	auth.GET("/google/start", a.googleStartHandler)
	auth.GET("/google/callback", a.googleCallbackHandler)

	users := r.Group("/api/users", a.requireAuth())
	users.GET("/me", a.meHandler)
	users.PUT("/me/parent", a.updateParentHandler)

	chat := r.Group("/api/chat")
	chat.POST("/send", a.optionalAuth(), a.chatSendHandler)
	chat.GET("/history", a.requireAuth(), a.chatHistoryHandler)

	r.GET("/api/analytics", a.requireAuth(), a.analyticsHandler)
}

func (a *api) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "zenspace"})
}

// corsMiddleware allows the configured frontend origin only.
func corsMiddleware(origin string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{origin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// bearerToken extracts the token from the Authorization header, or "".
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return header[7:]
}

// currentUser resolves a bearer access token to a user record. Every failure
// is reported identically so the response reveals nothing about the cause.
func (a *api) currentUser(c *gin.Context) (*models.User, error) {
	raw := bearerToken(c)
	if raw == "" {
		return nil, token.ErrInvalidToken
	}
	claims, err := a.codec.Decode(raw, token.TypeAccess)
	if err != nil {
		return nil, err
	}
	userID, err := authflow.ParseSubject(claims.Subject)
	if err != nil {
		return nil, token.ErrInvalidToken
	}
	user, err := a.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, token.ErrInvalidToken
	}
	return user, nil
}

func (a *api) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.currentUser(c)
		if errors.Is(err, token.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}
		if err != nil {
			// Store failure, not a bad token; don't mask it as a 401.
			a.serverError(c, "auth lookup failed", err)
			c.Abort()
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

// optionalAuth resolves the user when a bearer token is present but lets
// anonymous requests through. A present-but-bad token is still rejected.
func (a *api) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c) == "" {
			c.Next()
			return
		}
		user, err := a.currentUser(c)
		if errors.Is(err, token.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}
		if err != nil {
			a.serverError(c, "auth lookup failed", err)
			c.Abort()
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

func userFromContext(c *gin.Context) *models.User {
	if v, ok := c.Get("user"); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

func deviceMeta(c *gin.Context) authflow.DeviceMeta {
	return authflow.DeviceMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}

// userOut is the client-facing projection of a user record.
func userOut(user *models.User) gin.H {
	firstName := user.Name
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	return gin.H{
		"id":           authflow.Subject(user.ID),
		"name":         user.Name,
		"firstName":    firstName,
		"email":        user.Email,
		"authProvider": user.AuthProvider,
		"parent": gin.H{
			"name":  user.ParentName,
			"email": user.ParentEmail,
			"phone": user.ParentPhone,
		},
		"createdAt": user.CreatedAt,
		"updatedAt": user.UpdatedAt,
	}
}

func (a *api) serverError(c *gin.Context, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (a *api) signupHandler(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required,min=6"`
		ParentName  string `json:"parentName"`
		ParentEmail string `json:"parentEmail"`
		ParentPhone string `json:"parentPhone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := a.reconciler.Signup(c.Request.Context(), authflow.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Parent: authflow.ParentContact{
			Name:  req.ParentName,
			Email: req.ParentEmail,
			Phone: req.ParentPhone,
		},
	})
	if errors.Is(err, authflow.ErrAlreadyExists) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user already exists"})
		return
	}
	if err != nil {
		a.serverError(c, "signup failed", err)
		return
	}
	pair, err := a.orchestrator.IssueForUser(c.Request.Context(), user, deviceMeta(c))
	if err != nil {
		a.serverError(c, "token issuance failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": userOut(user), "tokens": pair})
}

func (a *api) loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := a.reconciler.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, authflow.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		a.serverError(c, "login failed", err)
		return
	}
	pair, err := a.orchestrator.IssueForUser(c.Request.Context(), user, deviceMeta(c))
	if err != nil {
		a.serverError(c, "token issuance failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userOut(user), "tokens": pair})
}

func (a *api) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required,min=10"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, pair, err := a.orchestrator.Rotate(c.Request.Context(), req.RefreshToken, deviceMeta(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, pair)
	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, authflow.ErrUnauthorized),
		errors.Is(err, authflow.ErrUserNotFound):
		// Deliberately indistinguishable rejection reasons.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
	default:
		a.serverError(c, "refresh failed", err)
	}
}

func (a *api) meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, userOut(userFromContext(c)))
}

func (a *api) updateParentHandler(c *gin.Context) {
	user := userFromContext(c)
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user.ParentName = req.Name
	user.ParentEmail = req.Email
	user.ParentPhone = req.Phone
	if err := a.users.Update(c.Request.Context(), user); err != nil {
		a.serverError(c, "parent update failed", err)
		return
	}
	c.JSON(http.StatusOK, userOut(user))
}

// riskKeywords trigger the elevated risk score on chat messages.
var riskKeywords = []string{"suicide", "kill myself", "harm", "hopeless", "end it"}

func scanRiskFlags(message string) []string {
	lower := strings.ToLower(message)
	var flags []string
	for _, kw := range riskKeywords {
		if strings.Contains(lower, kw) {
			flags = append(flags, kw)
		}
	}
	return flags
}

func (a *api) chatSendHandler(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := userFromContext(c)
	var userID *uint
	botCtx := &aibot.Context{}
	if user != nil {
		userID = &user.ID
		botCtx.UserID = authflow.Subject(user.ID)
	}
	flags := scanRiskFlags(req.Message)
	botCtx.RiskFlags = flags

	reply, err := a.bot.Reply(c.Request.Context(), req.Message, botCtx)
	if err != nil {
		a.log.Warn("ai bot request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI service unavailable"})
		return
	}

	riskScore := 0.1
	if len(flags) > 0 {
		riskScore = 0.7
	}
	joined := strings.Join(flags, ",")
	chat := models.Chat{
		UserID:    userID,
		Message:   req.Message,
		Reply:     reply,
		RiskScore: riskScore,
		RiskFlags: joined,
	}
	if err := a.chats.Create(c.Request.Context(), &chat); err != nil {
		a.serverError(c, "chat persist failed", err)
		return
	}
	analytics := models.Analytics{
		UserID:    userID,
		Date:      time.Now().UTC(),
		RiskScore: riskScore,
		Keywords:  joined,
	}
	if err := a.analytics.Create(c.Request.Context(), &analytics); err != nil {
		a.serverError(c, "analytics persist failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (a *api) chatHistoryHandler(c *gin.Context) {
	user := userFromContext(c)
	chats, err := a.chats.Recent(c.Request.Context(), user.ID, 50)
	if err != nil {
		a.serverError(c, "history query failed", err)
		return
	}
	// Oldest first for display.
	out := make([]gin.H, 0, len(chats))
	for i := len(chats) - 1; i >= 0; i-- {
		out = append(out, gin.H{
			"id":      chats[i].ID,
			"message": chats[i].Message,
			"reply":   chats[i].Reply,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) analyticsHandler(c *gin.Context) {
	user := userFromContext(c)
	rows, err := a.analytics.Recent(c.Request.Context(), user.ID, 100)
	if err != nil {
		a.serverError(c, "analytics query failed", err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"date":       row.Date,
			"risk_score": row.RiskScore,
			"keywords":   row.Keywords,
		})
	}
	c.JSON(http.StatusOK, out)
}
