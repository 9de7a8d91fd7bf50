package service

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/apperr"
	"bookstore/internal/auth"
	"bookstore/internal/mailer"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// password reset codes live this long
const passwordResetTTL = 15 * time.Minute

// UserService handles profile, password change and user administration
type UserService struct {
	store  UserStore
	mail   mailer.Mailer
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService creates a new user service
func NewUserService(store UserStore, mail mailer.Mailer) *UserService {
	return &UserService{
		store:  store,
		mail:   mail,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// ProfileUpdate holds the editable profile fields; nil means unchanged
type ProfileUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Address   *string `json:"address"`
}

// GetProfile returns the caller's account
func (s *UserService) GetProfile(ctx context.Context, p *models.Principal) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		return nil, userLookupErr(err)
	}
	return user, nil
}

// UpdateProfile changes the supplied profile fields
func (s *UserService) UpdateProfile(ctx context.Context, p *models.Principal, in ProfileUpdate) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateProfile")
	defer span.End()

	if in.FirstName == nil && in.LastName == nil && in.Address == nil {
		return nil, apperr.BadRequest("No valid fields to update. Please provide at least one of: firstName, lastName, or address.")
	}

	user, err := s.store.UpdateUserProfile(ctx, p.UserID, in.FirstName, in.LastName, in.Address)
	if err != nil {
		return nil, userLookupErr(err)
	}
	return user, nil
}

// RequestPasswordChange checks the current password and mails a reset code
func (s *UserService) RequestPasswordChange(ctx context.Context, p *models.Principal, currentPassword string) error {
	ctx, span := util.StartSpan(ctx, "UserService.RequestPasswordChange")
	defer span.End()

	if currentPassword == "" {
		return apperr.BadRequest("Current password is required.")
	}

	user, err := s.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		return userLookupErr(err)
	}
	if !auth.CheckPassword(user.PasswordHash, currentPassword) {
		return apperr.Unauthorized("Current password is incorrect.")
	}

	code, err := auth.NewVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	token := &models.VerificationToken{
		Token:     code,
		UserID:    user.UserID,
		Type:      models.TokenPasswordReset,
		ExpiresAt: s.now().Add(passwordResetTTL),
	}
	if err := s.store.ReplaceToken(ctx, token); err != nil {
		return err
	}

	if err := s.mail.SendPasswordChangeCode(ctx, user.Email, user.Username, code); err != nil {
		util.NotificationsSentTotal.WithLabelValues("password_code", "failed").Inc()
		return fmt.Errorf("failed to send password change email: %w", err)
	}
	util.NotificationsSentTotal.WithLabelValues("password_code", "sent").Inc()
	return nil
}

// ConfirmPasswordChange consumes a reset code and stores the new password
func (s *UserService) ConfirmPasswordChange(ctx context.Context, p *models.Principal, code, newPassword string) error {
	ctx, span := util.StartSpan(ctx, "UserService.ConfirmPasswordChange")
	defer span.End()

	if code == "" || newPassword == "" {
		return apperr.BadRequest("Token and new password are required.")
	}

	user, err := s.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		return userLookupErr(err)
	}

	token, err := s.store.FindValidToken(ctx, user.UserID, models.TokenPasswordReset, code, s.now())
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Unauthorized("Invalid or expired token.")
	}
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.ChangePassword(ctx, user.UserID, hash, token.ID); err != nil {
		return err
	}

	s.logger.Info("Password changed", zap.Int64("user_id", user.UserID))
	if err := s.mail.SendPasswordChanged(ctx, user.Email, user.Username); err != nil {
		util.NotificationsSentTotal.WithLabelValues("password_changed", "failed").Inc()
		s.logger.Warn("Failed to send password changed email", zap.Int64("user_id", user.UserID), zap.Error(err))
	} else {
		util.NotificationsSentTotal.WithLabelValues("password_changed", "sent").Inc()
	}
	return nil
}

// ListUsers returns every account, newest first
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// SetBlocked blocks or unblocks an account
func (s *UserService) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	if err := s.store.SetUserBlocked(ctx, userID, blocked); err != nil {
		return userLookupErr(err)
	}
	s.logger.Info("User block state changed", zap.Int64("user_id", userID), zap.Bool("blocked", blocked))
	return nil
}

// DeleteUser removes an account
func (s *UserService) DeleteUser(ctx context.Context, userID int64) error {
	err := s.store.DeleteUser(ctx, userID)
	if apperr.Is(err, apperr.KindBadRequest) {
		return apperr.Wrap(apperr.KindBadRequest, "User has existing orders and cannot be deleted", err)
	}
	if err != nil {
		return userLookupErr(err)
	}
	s.logger.Info("User deleted", zap.Int64("user_id", userID))
	return nil
}

// SweepResult counts what SweepExpired removed
type SweepResult struct {
	Users  int64
	Tokens int64
}

// SweepExpired deletes never-verified accounts whose codes all expired,
// then every remaining expired token
func (s *UserService) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "UserService.SweepExpired")
	defer span.End()

	var res SweepResult
	var err error

	res.Users, err = s.store.DeleteStaleUnverifiedUsers(ctx, now)
	if err != nil {
		return res, err
	}
	res.Tokens, err = s.store.DeleteExpiredTokens(ctx, now)
	if err != nil {
		return res, err
	}

	util.SweptRecordsTotal.WithLabelValues("users").Add(float64(res.Users))
	util.SweptRecordsTotal.WithLabelValues("tokens").Add(float64(res.Tokens))
	return res, nil
}
