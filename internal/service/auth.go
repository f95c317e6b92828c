package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/arvense/authtrail/internal/apperr"
	"github.com/arvense/authtrail/internal/models"
	"github.com/arvense/authtrail/internal/repository"
)

// Token lifetimes for the one-shot reset/verification tokens. The
// plaintext is returned to the flow exactly once; only its hash is
// stored.
const (
	resetTokenTTL  = 10 * time.Minute
	verifyTokenTTL = 24 * time.Hour
)

// genericResetMessage is returned for every forgot-password request,
// existing account or not, so the endpoint cannot be used to probe for
// registered emails.
const genericResetMessage = "If an account exists for that email, a reset link has been sent."

// AuthResponse is the token bundle returned by every transition that
// establishes a session.
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

// AuthService orchestrates the session lifecycle: signup, signin,
// google signin, password reset, password change, refresh.
type AuthService interface {
	Signup(ctx context.Context, name, email, password string, meta models.RequestMeta) (*AuthResponse, error)
	SignIn(ctx context.Context, email, password string, meta models.RequestMeta) (*AuthResponse, error)
	GoogleSignIn(ctx context.Context, idToken string, meta models.RequestMeta) (*AuthResponse, bool, error)
	ForgotPassword(ctx context.Context, email string, meta models.RequestMeta) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string, meta models.RequestMeta) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta models.RequestMeta) error
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	GetProfile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, name, avatarURL *string, meta models.RequestMeta) (*models.User, error)
}

// AuthConfig carries the lockout policy knobs.
type AuthConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
}

type authService struct {
	userRepo   repository.UserRepository
	jwtService JWTService
	verifier   GoogleVerifier
	mailer     Mailer
	recorder   AuditRecorder
	cfg        AuthConfig
}

// NewAuthService creates a new AuthService instance. verifier and
// mailer may be nil; the corresponding flows then report
// ServiceUnavailable.
func NewAuthService(userRepo repository.UserRepository, jwtService JWTService, verifier GoogleVerifier, mailer Mailer, recorder AuditRecorder, cfg AuthConfig) AuthService {
	if cfg.LockoutThreshold < 1 {
		cfg.LockoutThreshold = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 2 * time.Hour
	}
	return &authService{
		userRepo:   userRepo,
		jwtService: jwtService,
		verifier:   verifier,
		mailer:     mailer,
		recorder:   recorder,
		cfg:        cfg,
	}
}

func (s *authService) Signup(ctx context.Context, name, email, password string, meta models.RequestMeta) (*AuthResponse, error) {
	email = models.NormalizeEmail(email)

	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("an account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.FromStorage(err, "user not found")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password").WithCause(err)
	}

	user := &models.User{
		ID:           newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     true,
	}

	verifyToken := newOpaqueToken()
	verifyExpiry := time.Now().Add(verifyTokenTTL)
	user.VerifyTokenHash = models.HashToken(verifyToken)
	user.VerifyTokenExpiresAt = &verifyExpiry

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.FromStorage(err, "user not found")
	}

	if s.mailer != nil {
		// Fire and forget: a failed verification mail never fails signup.
		go func(to, token string) {
			if err := s.mailer.SendEmailVerification(context.Background(), to, token); err != nil {
				log.Printf("auth: verification mail to %s failed: %v", to, err)
			}
		}(user.Email, verifyToken)
	}

	s.recorder.LogCreate(user.ID, "User", user.ID, user, meta, "Created User with ID "+user.ID)

	return s.issueTokens(user)
}

func (s *authService) SignIn(ctx context.Context, email, password string, meta models.RequestMeta) (*AuthResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		// The caller learns nothing about which of email/password was
		// wrong.
		return nil, apperr.Unauthorized("invalid email or password")
	}

	now := time.Now()
	if user.IsLocked(now) {
		return nil, apperr.Locked("account is temporarily locked due to repeated failed sign-in attempts")
	}
	if !user.IsActive {
		return nil, apperr.Forbidden("account is deactivated")
	}
	if !user.HasPassword() {
		// Google-only account; a password attempt still burns a try.
		if err := s.userRepo.IncrementFailedAttempts(ctx, user.ID, s.cfg.LockoutThreshold, s.cfg.LockoutDuration); err != nil {
			log.Printf("auth: failed to track login attempt for %s: %v", user.ID, err)
		}
		return nil, apperr.Unauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.userRepo.IncrementFailedAttempts(ctx, user.ID, s.cfg.LockoutThreshold, s.cfg.LockoutDuration); err != nil {
			log.Printf("auth: failed to track login attempt for %s: %v", user.ID, err)
		}
		return nil, apperr.Unauthorized("invalid email or password")
	}

	prevLogin := user.LastLoginAt
	if err := s.userRepo.ResetFailedAttempts(ctx, user.ID); err != nil {
		log.Printf("auth: failed to reset login attempts for %s: %v", user.ID, err)
	}
	if err := s.userRepo.RecordLogin(ctx, user.ID, now); err != nil {
		log.Printf("auth: failed to record login for %s: %v", user.ID, err)
	}
	user.LastLoginAt = &now

	s.recorder.LogUpdate(user.ID, "User", user.ID,
		map[string]interface{}{"last_login_at": prevLogin},
		map[string]interface{}{"last_login_at": now},
		meta, "Signed in User with ID "+user.ID)

	return s.issueTokens(user)
}

func (s *authService) GoogleSignIn(ctx context.Context, idToken string, meta models.RequestMeta) (*AuthResponse, bool, error) {
	if s.verifier == nil {
		return nil, false, apperr.ServiceUnavailable("google sign-in is not configured")
	}

	profile, err := s.verifier.Verify(idToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrWrongAudience):
			return nil, false, apperr.InvalidToken("identity token was issued for a different client")
		case errors.Is(err, ErrIDTokenExpired):
			return nil, false, apperr.InvalidToken("identity token is expired")
		default:
			return nil, false, apperr.InvalidToken("invalid identity token")
		}
	}

	user, isNew, err := s.findOrCreateGoogleUser(ctx, profile, meta)
	if err != nil {
		return nil, false, err
	}
	if !user.IsActive {
		return nil, false, apperr.Unauthorized("account is deactivated")
	}

	now := time.Now()
	prevLogin := user.LastLoginAt
	if err := s.userRepo.RecordLogin(ctx, user.ID, now); err != nil {
		log.Printf("auth: failed to record login for %s: %v", user.ID, err)
	}
	user.LastLoginAt = &now

	// New accounts are already covered by the CREATE entry.
	if !isNew {
		s.recorder.LogUpdate(user.ID, "User", user.ID,
			map[string]interface{}{"last_login_at": prevLogin},
			map[string]interface{}{"last_login_at": now},
			meta, "Signed in User with ID "+user.ID)
	}

	resp, err := s.issueTokens(user)
	return resp, isNew, err
}

func (s *authService) findOrCreateGoogleUser(ctx context.Context, profile *GoogleProfile, meta models.RequestMeta) (*models.User, bool, error) {
	if user, err := s.userRepo.FindByGoogleID(ctx, profile.GoogleID); err == nil {
		return user, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperr.FromStorage(err, "user not found")
	}

	user, err := s.userRepo.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		// Existing password account: link the google identity and
		// backfill profile fields, but never touch the role.
		before := map[string]interface{}{
			"google_linked":     user.GoogleID != nil,
			"is_email_verified": user.IsEmailVerified,
			"avatar_url":        user.AvatarURL,
		}
		user.GoogleID = &profile.GoogleID
		if user.AvatarURL == "" {
			user.AvatarURL = profile.Picture
		}
		if profile.EmailVerified {
			user.IsEmailVerified = true
		}
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, false, apperr.FromStorage(err, "user not found")
		}
		s.recorder.LogUpdate(user.ID, "User", user.ID, before,
			map[string]interface{}{
				"google_linked":     true,
				"is_email_verified": user.IsEmailVerified,
				"avatar_url":        user.AvatarURL,
			},
			meta, "Linked Google identity to User with ID "+user.ID)
		return user, false, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &models.User{
			ID:              newID(),
			Name:            profile.Name,
			Email:           models.NormalizeEmail(profile.Email),
			GoogleID:        &profile.GoogleID,
			AvatarURL:       profile.Picture,
			Role:            models.RoleUser,
			IsEmailVerified: profile.EmailVerified,
			IsActive:        true,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, false, apperr.FromStorage(err, "user not found")
		}
		s.recorder.LogCreate(user.ID, "User", user.ID, user, meta, "Created User with ID "+user.ID)
		return user, true, nil

	default:
		return nil, false, apperr.FromStorage(err, "user not found")
	}
}

func (s *authService) ForgotPassword(ctx context.Context, email string, meta models.RequestMeta) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil || !user.IsActive {
		// Same response whether or not the account exists.
		return genericResetMessage, nil
	}

	if s.mailer == nil {
		return "", apperr.ServiceUnavailable("password reset is temporarily unavailable")
	}

	resetToken := newOpaqueToken()
	expiry := time.Now().Add(resetTokenTTL)
	user.ResetTokenHash = models.HashToken(resetToken)
	user.ResetTokenExpiresAt = &expiry
	if err := s.userRepo.Update(ctx, user); err != nil {
		return "", apperr.FromStorage(err, "user not found")
	}

	go func(to, token string) {
		if err := s.mailer.SendPasswordReset(context.Background(), to, token); err != nil {
			log.Printf("auth: reset mail to %s failed: %v", to, err)
		}
	}(user.Email, resetToken)

	s.recorder.LogUpdate(user.ID, "User", user.ID,
		map[string]interface{}{"reset_requested": false},
		map[string]interface{}{"reset_requested": true},
		meta, "Requested password reset for User with ID "+user.ID)

	return genericResetMessage, nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string, meta models.RequestMeta) error {
	user, err := s.userRepo.FindByResetTokenHash(ctx, models.HashToken(token))
	if err != nil {
		return apperr.InvalidToken("reset token is invalid or expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("failed to hash password").WithCause(err)
	}

	// Single use: the hash is cleared in the same write that sets the
	// new password. A successful reset also lifts any lockout.
	user.PasswordHash = string(hash)
	user.ResetTokenHash = ""
	user.ResetTokenExpiresAt = nil
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.FromStorage(err, "user not found")
	}

	s.recorder.LogUpdate(user.ID, "User", user.ID,
		map[string]interface{}{"password_changed": false},
		map[string]interface{}{"password_changed": true},
		meta, "Reset password for User with ID "+user.ID)

	return nil
}

func (s *authService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta models.RequestMeta) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return apperr.FromStorage(err, "user not found")
	}

	// Accounts created through Google have no password yet and may set
	// one without a current password.
	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
			return apperr.Validation("current password is incorrect", map[string]string{
				"current_password": "incorrect",
			})
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("failed to hash password").WithCause(err)
	}
	user.PasswordHash = string(hash)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.FromStorage(err, "user not found")
	}

	s.recorder.LogUpdate(user.ID, "User", user.ID,
		map[string]interface{}{"password_changed": false},
		map[string]interface{}{"password_changed": true},
		meta, "Changed password for User with ID "+user.ID)

	return nil
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperr.Unauthorized("refresh token is expired")
		}
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}
	if !user.IsActive {
		return nil, apperr.Unauthorized("account is deactivated")
	}

	return s.issueTokens(user)
}

func (s *authService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.FromStorage(err, "user not found")
	}
	return user, nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID string, name, avatarURL *string, meta models.RequestMeta) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.FromStorage(err, "user not found")
	}

	before := map[string]interface{}{"name": user.Name, "avatar_url": user.AvatarURL}

	// Only name and avatar are reachable from this path; role, email
	// and flags are not.
	if name != nil {
		user.Name = *name
	}
	if avatarURL != nil {
		user.AvatarURL = *avatarURL
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, apperr.FromStorage(err, "user not found")
	}

	s.recorder.LogUpdate(user.ID, "User", user.ID, before,
		map[string]interface{}{"name": user.Name, "avatar_url": user.AvatarURL},
		meta, "Updated User with ID "+user.ID)

	return user, nil
}

func (s *authService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, apperr.Internal("failed to issue access token").WithCause(err)
	}
	refreshToken, err := s.jwtService.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to issue refresh token").WithCause(err)
	}
	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtService.AccessExpiry().Seconds()),
	}, nil
}

func newID() string {
	return uuid.NewString()
}

// newOpaqueToken returns 32 bytes of entropy as hex. The plaintext is
// handed out once; storage only ever sees its hash.
func newOpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process cannot do its job.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
