package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/branchd-dev/sessiongate/internal/assert"
	"github.com/branchd-dev/sessiongate/internal/auth"
	"github.com/branchd-dev/sessiongate/internal/models"
)

const (
	localAccessTokenTTL = time.Hour
	localSessionTTL     = 30 * 24 * time.Hour

	// hex sha256, matches the refresh_hash column width
	refreshHashLength = 64
)

var ErrUserNotFound = errors.New("user not found")

// LocalProvider is an embedded identity provider backed by SQLite. Refresh
// tokens are not rotated: a session keeps its refresh token and only its
// expiry slides, so concurrent refreshes of the same pair cannot race.
type LocalProvider struct {
	db     *gorm.DB
	tokens *auth.TokenIssuer
	logger zerolog.Logger
	now    func() time.Time
}

// OpenLocal opens (and migrates) the SQLite database at path
func OpenLocal(path, secret string, zlog zerolog.Logger) (*LocalProvider, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(4)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=1",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate identity database: %w", err)
	}

	return NewLocalProvider(db, secret, zlog), nil
}

// NewLocalProvider wraps an already migrated database
func NewLocalProvider(db *gorm.DB, secret string, zlog zerolog.Logger) *LocalProvider {
	return &LocalProvider{
		db:     db,
		tokens: auth.NewTokenIssuer(secret, localAccessTokenTTL),
		logger: zlog.With().Str("component", "local_identity").Logger(),
		now:    time.Now,
	}
}

// SetClock replaces the time source, for tests
func (p *LocalProvider) SetClock(now func() time.Time) {
	p.now = now
	p.tokens.SetClock(now)
}

// Close closes the underlying database
func (p *LocalProvider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates a new account
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrRegistrationFailed)
	}

	var count int64
	if err := p.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	if count > 0 {
		return fmt.Errorf("%w: email already registered", ErrRegistrationFailed)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	user := &models.User{Email: email, PasswordHash: passwordHash}
	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	p.logger.Info().Str("user_id", user.ID).Str("email", email).Msg("User registered")
	return nil
}

// SignIn verifies the password and opens a new session
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	var user models.User
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := auth.VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	refreshToken, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	now := p.now()
	session := &models.Session{
		UserID:      user.ID,
		RefreshHash: digest(refreshToken),
		ExpiresAt:   now.Add(localSessionTTL),
		LastSeenAt:  now,
	}
	if err := p.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	assert.NotEmpty("session id", session.ID)
	accessToken, err := p.tokens.Issue(user.ID, user.Email, session.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &SignInResult{
		Pair:   TokenPair{AccessToken: accessToken, RefreshToken: refreshToken},
		UserID: user.ID,
		Email:  user.Email,
	}, nil
}

// SignOut deletes the session the refresh token belongs to
func (p *LocalProvider) SignOut(ctx context.Context, pair TokenPair) error {
	if pair.RefreshToken == "" {
		return nil
	}
	err := p.db.WithContext(ctx).
		Where("refresh_hash = ?", digest(pair.RefreshToken)).
		Delete(&models.Session{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RefreshSession checks the pair belongs to a live session, slides the
// session expiry and re-issues the access token once it has expired.
func (p *LocalProvider) RefreshSession(ctx context.Context, pair TokenPair) (*Session, error) {
	if !pair.Complete() {
		return nil, fmt.Errorf("%w: incomplete token pair", ErrSessionRefreshFailed)
	}

	var session models.Session
	err := p.db.WithContext(ctx).
		Preload("User").
		Where("refresh_hash = ?", digest(pair.RefreshToken)).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown refresh token", ErrSessionRefreshFailed)
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionRefreshFailed, err)
	}

	now := p.now()
	if session.Expired(now) {
		if err := p.db.WithContext(ctx).Delete(&session).Error; err != nil {
			p.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to delete expired session")
		}
		return nil, fmt.Errorf("%w: session expired", ErrSessionRefreshFailed)
	}

	claims, err := p.tokens.Parse(pair.AccessToken)
	expired := errors.Is(err, auth.ErrTokenExpired)
	if err != nil && !expired {
		return nil, fmt.Errorf("%w: %w", ErrSessionRefreshFailed, err)
	}
	if claims.SessionID != session.ID || claims.Subject != session.UserID {
		return nil, fmt.Errorf("%w: token pair does not belong to one session", ErrSessionRefreshFailed)
	}

	accessToken := pair.AccessToken
	if expired {
		accessToken, err = p.tokens.Issue(session.UserID, session.User.Email, session.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionRefreshFailed, err)
		}
	}

	err = p.db.WithContext(ctx).Model(&session).Updates(map[string]any{
		"expires_at":   now.Add(localSessionTTL),
		"last_seen_at": now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionRefreshFailed, err)
	}

	return &Session{
		Pair:   TokenPair{AccessToken: accessToken, RefreshToken: pair.RefreshToken},
		UserID: session.UserID,
		Email:  session.User.Email,
	}, nil
}

// RoleForUser returns the profile role, or "" when there is no profile
func (p *LocalProvider) RoleForUser(ctx context.Context, userID string) (string, error) {
	var profile models.Profile
	if err := models.FindByID(p.db.WithContext(ctx), userID, &profile); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find profile: %w", err)
	}
	return profile.Role, nil
}

// SetRole assigns a role to the user registered under email
func (p *LocalProvider) SetRole(ctx context.Context, email, role string) error {
	var user models.User
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	profile := &models.Profile{ID: user.ID, Role: role}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	p.logger.Info().Str("user_id", user.ID).Str("role", role).Msg("Role assigned")
	return nil
}

// PurgeExpired deletes sessions whose sliding expiry has passed
func (p *LocalProvider) PurgeExpired(ctx context.Context) (int64, error) {
	result := p.db.WithContext(ctx).Where("expires_at <= ?", p.now()).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// digest is what the sessions table stores in place of a refresh token
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	d := hex.EncodeToString(sum[:])
	assert.Length(d, refreshHashLength)
	return d
}
