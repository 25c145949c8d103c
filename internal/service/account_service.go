package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OTPSender delivers one-time codes to an account holder.
type OTPSender interface {
	SendOTP(ctx context.Context, kind models.AccountKind, account *models.Account, code string, expiresAt time.Time) error
}

type AccountConfig struct {
	OTPLength          int
	OTPTTL             time.Duration
	DefaultCountryCode string
	// AutoLoginOnRegister issues a session token as part of registration.
	AutoLoginOnRegister bool
}

// AccountService implements registration, login, OTP and sessions for one
// account kind. Customers and agents each get their own instance.
type AccountService struct {
	kind   models.AccountKind
	store  *store.Store
	tokens *auth.TokenIssuer
	otp    OTPSender
	cfg    AccountConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewAccountService(kind models.AccountKind, store *store.Store, tokens *auth.TokenIssuer, otp OTPSender, cfg AccountConfig) *AccountService {
	return &AccountService{
		kind:   kind,
		store:  store,
		tokens: tokens,
		otp:    otp,
		cfg:    cfg,
		now:    time.Now,
		logger: util.GetLogger().With(zap.String("account_kind", string(kind))),
	}
}

func (s *AccountService) Kind() models.AccountKind {
	return s.kind
}

type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	MobileNumber    string `json:"mobile_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type LoginRequest struct {
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
	Password     string `json:"password"`
}

// OTPRequest identifies an account by email or mobile, with a code when verifying.
type OTPRequest struct {
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
	OTP          string `json:"otp"`
}

// Session is an issued bearer token.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *models.Account `json:"account"`
}

// RegisterResult holds the new account and, for auto-login kinds, its session.
type RegisterResult struct {
	Account *models.Account `json:"account"`
	Session *Session        `json:"session,omitempty"`
}

// Register creates an unverified account and sends it a verification code.
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register", attribute.String("kind", string(s.kind)))
	defer span.End()

	email := auth.NormalizeEmail(req.Email)
	mobile := auth.NormalizeMobile(req.MobileNumber, s.cfg.DefaultCountryCode)

	switch {
	case req.Name == "":
		return nil, apperr.New(apperr.CodeValidation, "name is required")
	case email == "" && mobile == "":
		return nil, apperr.New(apperr.CodeValidation, "email or mobile_number is required")
	case req.Password == "":
		return nil, apperr.New(apperr.CodeValidation, "password is required")
	case req.Password != req.ConfirmPassword:
		return nil, apperr.New(apperr.CodeValidation, "passwords do not match")
	}

	if err := s.ensureUnique(ctx, email, mobile); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{Name: req.Name, PasswordHash: hash}
	if email != "" {
		account.Email = &email
	}
	if mobile != "" {
		account.MobileNumber = &mobile
	}

	code, err := auth.GenerateOTP(s.cfg.OTPLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}
	now := s.now()
	otpExpiry := now.Add(s.cfg.OTPTTL)

	var session *Session
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateAccount(ctx, s.kind, account); err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.New(apperr.CodeConflict, "account already exists")
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		if err := tx.SetAccountOTP(ctx, s.kind, account.ID, code, otpExpiry); err != nil {
			return fmt.Errorf("failed to store otp: %w", err)
		}
		if s.cfg.AutoLoginOnRegister {
			session, err = s.issueSession(ctx, tx, account, now)
			return err
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.AuthEventsTotal.WithLabelValues(string(s.kind), "register").Inc()
	s.logger.Info("Account registered", zap.Int64("account_id", account.ID))

	if err := s.deliverOTP(ctx, account, code, otpExpiry); err != nil {
		s.logger.Warn("Verification code not delivered", zap.Int64("account_id", account.ID), zap.Error(err))
	}

	return &RegisterResult{Account: account, Session: session}, nil
}

// Login verifies a password and issues a new session, replacing any earlier one.
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Login", attribute.String("kind", string(s.kind)))
	defer span.End()

	account, err := s.findAccount(ctx, req.Email, req.MobileNumber)
	if apperr.Is(err, apperr.CodeNotFound) {
		util.AuthEventsTotal.WithLabelValues(string(s.kind), "login_failed").Inc()
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	if !auth.CheckPassword(account.PasswordHash, req.Password) {
		util.AuthEventsTotal.WithLabelValues(string(s.kind), "login_failed").Inc()
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid credentials")
	}
	if !account.IsVerified {
		return nil, apperr.New(apperr.CodeForbidden, "account not verified")
	}

	session, err := s.issueSession(ctx, s.store, account, s.now())
	if err != nil {
		return nil, err
	}
	util.AuthEventsTotal.WithLabelValues(string(s.kind), "login").Inc()
	return session, nil
}

// SendOTP issues a fresh code, replacing any pending one, and delivers it.
func (s *AccountService) SendOTP(ctx context.Context, req *OTPRequest) (time.Time, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.SendOTP", attribute.String("kind", string(s.kind)))
	defer span.End()

	account, err := s.findAccount(ctx, req.Email, req.MobileNumber)
	if err != nil {
		return time.Time{}, err
	}

	code, err := auth.GenerateOTP(s.cfg.OTPLength)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to generate otp: %w", err)
	}
	expiry := s.now().Add(s.cfg.OTPTTL)

	if err := s.store.SetAccountOTP(ctx, s.kind, account.ID, code, expiry); err != nil {
		return time.Time{}, fmt.Errorf("failed to store otp: %w", err)
	}
	if err := s.deliverOTP(ctx, account, code, expiry); err != nil {
		util.RecordError(span, err)
		return time.Time{}, apperr.Wrap(apperr.CodeDependency, err, "could not deliver otp")
	}

	util.AuthEventsTotal.WithLabelValues(string(s.kind), "otp_sent").Inc()
	return expiry, nil
}

// VerifyOTP consumes a pending code and marks the account verified.
func (s *AccountService) VerifyOTP(ctx context.Context, req *OTPRequest) (*models.Account, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.VerifyOTP", attribute.String("kind", string(s.kind)))
	defer span.End()

	account, err := s.consumeOTP(ctx, s.store, req)
	if err != nil {
		return nil, err
	}
	util.AuthEventsTotal.WithLabelValues(string(s.kind), "otp_verified").Inc()
	return account, nil
}

// OTPLogin consumes a pending code and issues a session.
func (s *AccountService) OTPLogin(ctx context.Context, req *OTPRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.OTPLogin", attribute.String("kind", string(s.kind)))
	defer span.End()

	var session *Session
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		account, err := s.consumeOTP(ctx, tx, req)
		if err != nil {
			return err
		}
		session, err = s.issueSession(ctx, tx, account, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	util.AuthEventsTotal.WithLabelValues(string(s.kind), "otp_login").Inc()
	return session, nil
}

// Logout revokes the account's stored session token.
func (s *AccountService) Logout(ctx context.Context, accountID int64) error {
	err := s.store.ClearAccountToken(ctx, s.kind, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "account not found")
	}
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	util.AuthEventsTotal.WithLabelValues(string(s.kind), "logout").Inc()
	return nil
}

// Authenticate resolves a bearer token to its account. The token must verify,
// match the stored copy and be within the stored expiry.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token")
	}
	if claims.Kind != s.kind {
		return nil, apperr.New(apperr.CodeUnauthorized, "token not valid for this endpoint")
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token subject")
	}

	account, err := s.store.GetAccountByToken(ctx, s.kind, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeUnauthorized, "session revoked")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if account.ID != id {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid token")
	}
	if account.TokenExpiry == nil || !s.now().Before(*account.TokenExpiry) {
		return nil, apperr.New(apperr.CodeUnauthorized, "session expired")
	}
	return account, nil
}

func (s *AccountService) Profile(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.store.GetAccountByID(ctx, s.kind, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

func (s *AccountService) consumeOTP(ctx context.Context, st *store.Store, req *OTPRequest) (*models.Account, error) {
	if req.OTP == "" {
		return nil, apperr.New(apperr.CodeValidation, "otp is required")
	}
	account, err := s.findAccountIn(ctx, st, req.Email, req.MobileNumber)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !auth.CheckOTP(account.OTPCode, account.OTPExpiry, req.OTP, now) {
		util.AuthEventsTotal.WithLabelValues(string(s.kind), "otp_rejected").Inc()
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid or expired otp")
	}
	err = st.ConsumeAccountOTP(ctx, s.kind, account.ID, req.OTP, now)
	if errors.Is(err, store.ErrNotFound) {
		// redeemed concurrently
		util.AuthEventsTotal.WithLabelValues(string(s.kind), "otp_rejected").Inc()
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid or expired otp")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}
	account.IsVerified = true
	account.OTPCode = nil
	account.OTPExpiry = nil
	return account, nil
}

func (s *AccountService) issueSession(ctx context.Context, st *store.Store, account *models.Account, now time.Time) (*Session, error) {
	token, expiry, err := s.tokens.Issue(s.kind, account.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	if err := st.SetAccountToken(ctx, s.kind, account.ID, token, expiry); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	account.Token = &token
	account.TokenExpiry = &expiry
	return &Session{Token: token, ExpiresAt: expiry, Account: account}, nil
}

func (s *AccountService) deliverOTP(ctx context.Context, account *models.Account, code string, expiry time.Time) error {
	if s.otp == nil {
		return errors.New("no otp sender configured")
	}
	return s.otp.SendOTP(ctx, s.kind, account, code, expiry)
}

func (s *AccountService) ensureUnique(ctx context.Context, email, mobile string) error {
	if email != "" {
		_, err := s.store.GetAccountByEmail(ctx, s.kind, email)
		if err == nil {
			return apperr.New(apperr.CodeConflict, "email already registered")
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check email: %w", err)
		}
	}
	if mobile != "" {
		_, err := s.store.GetAccountByMobile(ctx, s.kind, mobile)
		if err == nil {
			return apperr.New(apperr.CodeConflict, "mobile number already registered")
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check mobile number: %w", err)
		}
	}
	return nil
}

func (s *AccountService) findAccount(ctx context.Context, email, mobile string) (*models.Account, error) {
	return s.findAccountIn(ctx, s.store, email, mobile)
}

// findAccountIn looks an account up by email, falling back to mobile number.
func (s *AccountService) findAccountIn(ctx context.Context, st *store.Store, email, mobile string) (*models.Account, error) {
	email = auth.NormalizeEmail(email)
	mobile = auth.NormalizeMobile(mobile, s.cfg.DefaultCountryCode)

	var (
		account *models.Account
		err     error
	)
	switch {
	case email != "":
		account, err = st.GetAccountByEmail(ctx, s.kind, email)
	case mobile != "":
		account, err = st.GetAccountByMobile(ctx, s.kind, mobile)
	default:
		return nil, apperr.New(apperr.CodeValidation, "email or mobile_number is required")
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}
