package service

import (
	"context"
	"testing"
	"time"

	"bookstore/config"
	"bookstore/internal/apperr"
	"bookstore/internal/auth"
	"bookstore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture() (*AuthService, *memStore, *fakeMailer) {
	store := newMemStore()
	mail := &fakeMailer{}
	svc := NewAuthService(store, auth.NewTokens("test-secret", time.Hour), mail, config.AuthConfig{
		VerificationTTL: 15 * time.Minute,
		ResendTTL:       24 * time.Hour,
	})
	return svc, store, mail
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		Username: "reader",
		Email:    "reader@example.com",
		Password: "s3cret",
		Address:  "1 Library Lane",
	}
}

func TestRegisterRoleFromRequest(t *testing.T) {
	svc, _, _ := newAuthFixture()
	ctx := context.Background()

	req := validRegistration()
	req.Role = "SUPERUSER"
	user, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, user.Role)

	// self-registration as ADMIN is currently allowed
	req = validRegistration()
	req.Username, req.Email, req.Role = "boss", "boss@example.com", models.RoleAdmin
	user, err = svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
}

func TestRegisterVerifyLogin(t *testing.T) {
	svc, store, mail := newAuthFixture()
	ctx := context.Background()

	user, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, user.Role)
	assert.Equal(t, models.EmailNotVerified, user.EmailVerification)
	assert.Equal(t, []string{"confirmation:reader@example.com"}, mail.sent)

	_, err = svc.Login(ctx, "reader", "s3cret")
	require.True(t, apperr.Is(err, apperr.KindUnauthorized), "unverified")

	err = svc.VerifyEmail(ctx, "reader@example.com", "WRONG1")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	code := store.tokenFor(user.UserID, models.TokenEmailVerification)
	require.Len(t, code, 6)
	require.NoError(t, svc.VerifyEmail(ctx, "reader@example.com", code))

	_, err = svc.Login(ctx, "reader@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	res, err := svc.Login(ctx, "reader@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	principal, err := svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, principal.UserID)
	assert.Equal(t, "reader", principal.Username)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAuthFixture()
	ctx := context.Background()

	missing := validRegistration()
	missing.Address = ""
	_, err := svc.Register(ctx, missing)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	badEmail := validRegistration()
	badEmail.Email = "not-an-email"
	_, err = svc.Register(ctx, badEmail)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRegistration())
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	sameName := validRegistration()
	sameName.Email = "other@example.com"
	_, err = svc.Register(ctx, sameName)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Username is already taken", apperr.MessageOf(err))
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	svc, _, mail := newAuthFixture()
	mail.err = assert.AnError

	user, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	assert.NotZero(t, user.UserID)
}

func TestResendVerification(t *testing.T) {
	svc, store, mail := newAuthFixture()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	user, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	first := store.tokenFor(user.UserID, models.TokenEmailVerification)

	err = svc.ResendVerification(ctx, "nobody@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, svc.ResendVerification(ctx, "reader@example.com"))
	assert.Len(t, mail.sent, 2)

	second := store.tokenFor(user.UserID, models.TokenEmailVerification)
	if first != second {
		err = svc.VerifyEmail(ctx, "reader@example.com", first)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest), "old code is replaced")
	}

	// the resent code outlives the original 15 minutes
	svc.now = func() time.Time { return now.Add(time.Hour) }
	require.NoError(t, svc.VerifyEmail(ctx, "reader@example.com", second))

	err = svc.ResendVerification(ctx, "reader@example.com")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "already verified")
}

func TestLoginAndAuthenticateBlockedUser(t *testing.T) {
	svc, store, _ := newAuthFixture()
	ctx := context.Background()

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	u := store.addUser("blocked", models.RoleMember)
	u.PasswordHash = hash

	res, err := svc.Login(ctx, "blocked", "s3cret")
	require.NoError(t, err)

	require.NoError(t, store.SetUserBlocked(ctx, u.UserID, true))

	_, err = svc.Login(ctx, "blocked", "s3cret")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = svc.Authenticate(ctx, res.AccessToken)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc, store, _ := newAuthFixture()
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "garbage")
	require.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, "Invalid Token", apperr.MessageOf(err))

	ghost := &models.User{UserID: 404, Username: "ghost", Role: models.RoleMember}
	token, err := auth.NewTokens("test-secret", time.Hour).Issue(ghost)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	u := store.addUser("reader", models.RoleMember)
	expired, err := auth.NewTokens("test-secret", -time.Minute).Issue(u)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, expired)
	require.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, "Token has been expired", apperr.MessageOf(err))
}

func TestPasswordChangeFlow(t *testing.T) {
	store := newMemStore()
	mail := &fakeMailer{}
	svc := NewUserService(store, mail)
	ctx := context.Background()

	hash, err := auth.HashPassword("old-pass")
	require.NoError(t, err)
	u := store.addUser("reader", models.RoleMember)
	u.PasswordHash = hash
	p := principalOf(u)

	err = svc.RequestPasswordChange(ctx, p, "nope")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	require.NoError(t, svc.RequestPasswordChange(ctx, p, "old-pass"))
	code := store.tokenFor(u.UserID, models.TokenPasswordReset)
	require.NotEmpty(t, code)

	err = svc.ConfirmPasswordChange(ctx, p, "BAD000", "new-pass")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	require.NoError(t, svc.ConfirmPasswordChange(ctx, p, code, "new-pass"))
	updated, err := store.GetUserByID(ctx, u.UserID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(updated.PasswordHash, "new-pass"))
	assert.Equal(t, []string{"password_code:reader@example.com", "password_changed:reader@example.com"}, mail.sent)

	err = svc.ConfirmPasswordChange(ctx, p, code, "again")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "code is single use")
}

func TestProfileAndAdmin(t *testing.T) {
	store := newMemStore()
	svc := NewUserService(store, &fakeMailer{})
	ctx := context.Background()
	p := principalOf(store.addUser("reader", models.RoleMember))

	_, err := svc.UpdateProfile(ctx, p, ProfileUpdate{})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	user, err := svc.UpdateProfile(ctx, p, ProfileUpdate{Address: strPtr("2 Book Street")})
	require.NoError(t, err)
	assert.Equal(t, "2 Book Street", user.Address)

	require.NoError(t, svc.SetBlocked(ctx, p.UserID, true))
	err = svc.SetBlocked(ctx, 999, true)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, svc.DeleteUser(ctx, p.UserID))
	err = svc.DeleteUser(ctx, p.UserID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSweepExpired(t *testing.T) {
	svc, store, _ := newAuthFixture()
	users := NewUserService(store, &fakeMailer{})
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	stale, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	verified := store.addUser("verified", models.RoleMember)
	require.NoError(t, store.ReplaceToken(ctx, &models.VerificationToken{
		Token:     "ABC123",
		UserID:    verified.UserID,
		Type:      models.TokenPasswordReset,
		ExpiresAt: now.Add(-time.Minute),
	}))

	res, err := users.SweepExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Users: 1, Tokens: 1}, res)

	_, err = store.GetUserByID(ctx, stale.UserID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = store.GetUserByID(ctx, verified.UserID)
	assert.NoError(t, err)
}
