package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/pkg/logger"
)

// ErrInvalidSession is returned when a session token is missing, expired,
// revoked, or otherwise unusable.
var ErrInvalidSession = errors.New("invalid session")

// ErrInvalidCode is returned when a one-time sign-in code is unknown or has
// already been exchanged.
var ErrInvalidCode = errors.New("invalid or expired sign-in code")

const (
	signInCodePrefix   = "signin:"
	revokedTokenPrefix = "revoked:"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// AuthService implements Auth with JWT session tokens. One-time sign-in
// codes and revoked token ids live in Redis with a TTL.
type AuthService struct {
	store    Store
	redis    *redis.Client
	secret   []byte
	codeTTL  time.Duration
	tokenTTL time.Duration
	logger   *logger.Logger
}

// NewAuthService creates the auth layer.
func NewAuthService(store Store, rdb *redis.Client, jwtSecret string, codeTTL, tokenTTL time.Duration, log *logger.Logger) *AuthService {
	return &AuthService{
		store:    store,
		redis:    rdb,
		secret:   []byte(jwtSecret),
		codeTTL:  codeTTL,
		tokenTTL: tokenTTL,
		logger:   log,
	}
}

// SignInWithOTP issues a one-time sign-in code for the email. Delivery is out
// of band; the code is returned so the caller can build the magic link.
func (a *AuthService) SignInWithOTP(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return "", errors.New("email is malformed")
	}

	code := uuid.New().String()
	if err := a.redis.Set(ctx, signInCodePrefix+code, email, a.codeTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store sign-in code: %w", err)
	}

	a.logger.Info("sign-in code issued", zap.String("email", email))
	return code, nil
}

// ExchangeCode redeems a one-time code for a session. The code is consumed
// atomically; on first sign-in a user row is provisioned with the email's
// local part as display name.
func (a *AuthService) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	email, err := a.redis.GetDel(ctx, signInCodePrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to redeem sign-in code: %w", err)
	}

	user, err := a.provisionUser(ctx, email)
	if err != nil {
		return nil, err
	}

	return a.mintSession(user)
}

// provisionUser returns the user row for the email, creating it on first
// login.
func (a *AuthService) provisionUser(ctx context.Context, email string) (*model.User, error) {
	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &model.User{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      model.NameFromEmail(email),
		Email:     email,
		CreatedAt: time.Now(),
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	a.logger.Info("user provisioned", zap.String("user_id", user.ID), zap.String("email", email))
	return user, nil
}

func (a *AuthService) mintSession(user *model.User) (*Session, error) {
	now := time.Now()
	expiresAt := now.Add(a.tokenTTL)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: user.Email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// GetSession validates a session token and returns the session it carries.
func (a *AuthService) GetSession(ctx context.Context, token string) (*Session, error) {
	claims, err := a.parseToken(token)
	if err != nil {
		return nil, err
	}

	// Revoked tokens keep validating cryptographically; check the deny list.
	_, err = a.redis.Get(ctx, revokedTokenPrefix+claims.ID).Result()
	if err == nil {
		return nil, ErrInvalidSession
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}

	return &Session{
		Token:     token,
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SignOut revokes the session token for the remainder of its lifetime.
func (a *AuthService) SignOut(ctx context.Context, token string) error {
	claims, err := a.parseToken(token)
	if err != nil {
		return err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := a.redis.Set(ctx, revokedTokenPrefix+claims.ID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (a *AuthService) parseToken(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
