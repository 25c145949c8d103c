package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

// accountRoutes mounts the auth endpoints of one account kind on group.
func (h *Handler) accountRoutes(group *gin.RouterGroup, svc *service.AccountService) {
	a := accountHandlers{svc: svc}
	otpLimit := rateLimit(h.opts.OTPLimit, svc.Kind(), h.opts.Limiter)
	loginLimit := rateLimit(h.opts.LoginLimit, svc.Kind(), h.opts.Limiter)

	group.POST("/register", otpLimit, a.register)
	group.POST("/login", loginLimit, a.login)
	group.POST("/send-otp", otpLimit, a.sendOTP)
	group.POST("/verify-otp", loginLimit, a.verifyOTP)
	group.POST("/otp-login", loginLimit, a.otpLogin)
	group.POST("/logout", requireAuth(svc), a.logout)
	group.GET("/me", requireAuth(svc), a.me)
}

type accountHandlers struct {
	svc *service.AccountService
}

func (a accountHandlers) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	result, err := a.svc.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := gin.H{
		"message": "registered, verification code sent",
		"account": result.Account,
	}
	if result.Session != nil {
		payload["token"] = result.Session.Token
		payload["expires_at"] = result.Session.ExpiresAt
	}
	respondOK(c, http.StatusCreated, payload)
}

func (a accountHandlers) login(c *gin.Context) {
	var req service.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	session, err := a.svc.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSession(c, session)
}

func (a accountHandlers) sendOTP(c *gin.Context) {
	var req service.OTPRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	expiresAt, err := a.svc.SendOTP(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"message":    "verification code sent",
		"expires_at": expiresAt,
	})
}

func (a accountHandlers) verifyOTP(c *gin.Context) {
	var req service.OTPRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	account, err := a.svc.VerifyOTP(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"message": "account verified",
		"account": account,
	})
}

func (a accountHandlers) otpLogin(c *gin.Context) {
	var req service.OTPRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	session, err := a.svc.OTPLogin(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSession(c, session)
}

func (a accountHandlers) logout(c *gin.Context) {
	account := currentAccount(c)
	if err := a.svc.Logout(c.Request.Context(), account.ID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "logged out"})
}

func (a accountHandlers) me(c *gin.Context) {
	account, err := a.svc.Profile(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"account": account})
}

func respondSession(c *gin.Context, session *service.Session) {
	respondOK(c, http.StatusOK, gin.H{
		"message":    "login successful",
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"account":    session.Account,
	})
}
