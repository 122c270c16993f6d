package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/domain/user"
	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const minPasswordLength = 8

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(ctx context.Context, email, password, fullName string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*TokenResponse, error)
	Me(ctx context.Context) (*domain.User, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	// CreateAdmin creates an admin account, or promotes an existing user.
	CreateAdmin(ctx context.Context, email, password, fullName string) (*domain.User, error)
	AccessTTL() time.Duration
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     repos.UserRepo
	metrics      *observability.Metrics
	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	metrics *observability.Metrics,
	jwtSecretKey string,
	accessTTL time.Duration,
) AuthService {
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	return &authService{
		db:           db,
		log:          baseLog.With("service", "AuthService"),
		userRepo:     userRepo,
		metrics:      metrics,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
	}
}

func (as *authService) AccessTTL() time.Duration { return as.accessTTL }

func (as *authService) Register(ctx context.Context, email, password, fullName string) (*domain.User, error) {
	return as.createUser(ctx, email, password, fullName, user.RoleUser)
}

func (as *authService) CreateAdmin(ctx context.Context, email, password, fullName string) (*domain.User, error) {
	existing, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := as.userRepo.UpdateRole(ctx, nil, existing.ID, user.RoleAdmin); err != nil {
			return nil, err
		}
		existing.Role = user.RoleAdmin
		as.log.Info("Promoted user to admin", "user_id", existing.ID)
		return existing, nil
	}
	return as.createUser(ctx, email, password, fullName, user.RoleAdmin)
}

func (as *authService) createUser(ctx context.Context, email, password, fullName, role string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apierr.Validation("invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apierr.Validation("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hash),
		FullName: strings.TrimSpace(fullName),
		Role:     role,
		IsActive: true,
	}
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := as.userRepo.EmailExists(ctx, tx, email)
		if err != nil {
			return err
		}
		if exists {
			return apierr.Conflict("email already registered")
		}
		_, err = as.userRepo.Create(ctx, tx, []*domain.User{u})
		return err
	})
	if err != nil {
		return nil, err
	}
	as.log.Info("User registered", "user_id", u.ID, "role", role)
	return u, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	u, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		as.metrics.IncSecurityEvent("login_failed")
		return nil, apierr.Auth("incorrect email or password")
	}
	if !u.IsActive {
		as.metrics.IncSecurityEvent("login_inactive")
		return nil, apierr.Auth("inactive user")
	}
	tok, err := as.generateAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	return &TokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresIn:   int64(as.accessTTL.Seconds()),
	}, nil
}

func (as *authService) Me(ctx context.Context) (*domain.User, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Auth("not authenticated")
	}
	u, err := as.userRepo.GetByID(ctx, nil, rd.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.Auth("user no longer exists")
	}
	return u, nil
}

func (as *authService) generateAccessToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

// SetContextFromToken validates the bearer token and attaches the active user
// to ctx. Every failure is an auth error.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, apierr.Auth("missing bearer token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			as.metrics.IncSecurityEvent("token_expired")
			return ctx, apierr.Auth("token expired")
		}
		as.metrics.IncSecurityEvent("token_invalid")
		return ctx, apierr.Auth("could not validate credentials")
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, apierr.Auth("could not validate credentials")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Auth("invalid subject in token")
	}
	u, err := as.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return ctx, err
	}
	if u == nil || !u.IsActive {
		return ctx, apierr.Auth("inactive or unknown user")
	}
	rd := &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      u.ID,
		Role:        u.Role,
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}
