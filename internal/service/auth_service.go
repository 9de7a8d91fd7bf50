package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bookstore/config"
	"bookstore/internal/apperr"
	"bookstore/internal/auth"
	"bookstore/internal/mailer"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService handles registration, verification and login
type AuthService struct {
	store  UserStore
	tokens *auth.Tokens
	mail   mailer.Mailer
	cfg    config.AuthConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(store UserStore, tokens *auth.Tokens, mail mailer.Mailer, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		store:  store,
		tokens: tokens,
		mail:   mail,
		cfg:    cfg,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// RegisterRequest carries the fields of a new account
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	Role      string `json:"role"`
}

// LoginResult is returned on successful login
type LoginResult struct {
	AccessToken string       `json:"accessToken"`
	User        *models.User `json:"user"`
}

// Register creates an unverified account and mails its verification code
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Address == "" {
		return nil, apperr.BadRequest("Missing required fields")
	}
	if !emailPattern.MatchString(req.Email) {
		return nil, apperr.BadRequest("Invalid email format")
	}

	if err := s.ensureUnused(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	code, err := auth.NewVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	role := models.RoleMember
	if req.Role == models.RoleAdmin {
		role = models.RoleAdmin
	}

	user := &models.User{
		Username:          req.Username,
		Email:             req.Email,
		PasswordHash:      hash,
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Address:           req.Address,
		Role:              role,
		EmailVerification: models.EmailNotVerified,
	}
	token := &models.VerificationToken{
		Token:     code,
		Type:      models.TokenEmailVerification,
		ExpiresAt: s.now().Add(s.cfg.VerificationTTL),
	}

	if err := s.store.CreateUserWithToken(ctx, user, token); err != nil {
		return nil, err
	}

	util.UsersRegisteredTotal.Inc()
	s.logger.Info("User registered", zap.Int64("user_id", user.UserID), zap.String("role", role))

	s.notify("confirmation", user.UserID, s.mail.SendConfirmation(ctx, user.Email, user.Username, code))
	return user, nil
}

func (s *AuthService) ensureUnused(ctx context.Context, username, email string) error {
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return apperr.Conflict("Account already exists, please login!")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return apperr.Conflict("Username is already taken")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	return nil
}

// VerifyEmail consumes an email verification code
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	ctx, span := util.StartSpan(ctx, "AuthService.VerifyEmail")
	defer span.End()

	email, code = strings.TrimSpace(email), strings.TrimSpace(code)
	if email == "" || code == "" {
		return apperr.BadRequest("Token and email are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return userLookupErr(err)
	}

	token, err := s.store.FindValidToken(ctx, user.UserID, models.TokenEmailVerification, code, s.now())
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.BadRequest("Invalid or expired verification token")
	}
	if err != nil {
		return err
	}

	if err := s.store.MarkEmailVerified(ctx, user.UserID, token.ID); err != nil {
		return err
	}

	s.logger.Info("Email verified", zap.Int64("user_id", user.UserID))
	return nil
}

// ResendVerification replaces the verification code and mails it again
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	ctx, span := util.StartSpan(ctx, "AuthService.ResendVerification")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.BadRequest("Email is required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return userLookupErr(err)
	}
	if user.EmailVerification == models.EmailVerified {
		return apperr.BadRequest("This email is already verified")
	}

	code, err := auth.NewVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}
	token := &models.VerificationToken{
		Token:     code,
		UserID:    user.UserID,
		Type:      models.TokenEmailVerification,
		ExpiresAt: s.now().Add(s.cfg.ResendTTL),
	}
	if err := s.store.ReplaceToken(ctx, token); err != nil {
		return err
	}

	if err := s.mail.SendConfirmation(ctx, user.Email, user.Username, code); err != nil {
		util.NotificationsSentTotal.WithLabelValues("confirmation", "failed").Inc()
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	util.NotificationsSentTotal.WithLabelValues("confirmation", "sent").Inc()
	return nil
}

// Login checks credentials and issues an access token
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.BadRequest("Username/Email and Password are required")
	}

	var user *models.User
	var err error
	if emailPattern.MatchString(identifier) {
		user, err = s.store.GetUserByEmail(ctx, identifier)
	} else {
		user, err = s.store.GetUserByUsername(ctx, identifier)
	}
	if apperr.Is(err, apperr.KindNotFound) {
		util.LoginsTotal.WithLabelValues("unknown_user").Inc()
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		util.LoginsTotal.WithLabelValues("bad_password").Inc()
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if user.EmailVerification != models.EmailVerified {
		util.LoginsTotal.WithLabelValues("unverified").Inc()
		return nil, apperr.Unauthorized("Please verify your email before logging in")
	}
	if user.IsBlocked {
		util.LoginsTotal.WithLabelValues("blocked").Inc()
		return nil, apperr.Forbidden("Your account has been blocked")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	util.LoginsTotal.WithLabelValues("success").Inc()
	return &LoginResult{AccessToken: token, User: user}, nil
}

// Authenticate resolves a bearer token to the calling principal
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*models.Principal, error) {
	claims, err := s.tokens.Verify(rawToken)
	if errors.Is(err, auth.ErrTokenExpired) {
		return nil, apperr.Unauthorized("Token has been expired")
	}
	if err != nil {
		return nil, apperr.Unauthorized("Invalid Token")
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Unauthorized("Non-exist user")
	}
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, apperr.Forbidden("Your account has been blocked")
	}

	return &models.Principal{
		UserID:   user.UserID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}, nil
}

// notify logs the outcome of a best-effort email
func (s *AuthService) notify(kind string, userID int64, err error) {
	if err != nil {
		util.NotificationsSentTotal.WithLabelValues(kind, "failed").Inc()
		s.logger.Warn("Failed to send email",
			zap.String("kind", kind),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return
	}
	util.NotificationsSentTotal.WithLabelValues(kind, "sent").Inc()
}

func userLookupErr(err error) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound("User not found")
	}
	return err
}
