package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/jwt"
)

const minPasswordLen = 6

// AuthService registers users and manages their login sessions
type AuthService struct {
	users    *repository.UserRepo
	jwt      config.JWTConfig
	sessions *jwt.TokenStore
}

// NewAuthService creates an AuthService with sessions stored in rdb
func NewAuthService(users *repository.UserRepo, cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{
		users:    users,
		jwt:      cfg.JWT,
		sessions: jwt.NewTokenStore(rdb, cfg.JWT.ExpireHours),
	}
}

type RegisterRequest struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

type LoginRequest struct {
	UserId     string `json:"user_id"`
	Password   string `json:"password"`
	PlatformId int    `json:"platform_id"`
}

type LoginResponse struct {
	Token    string           `json:"token"`
	UserInfo *entity.UserInfo `json:"user_info"`
	// Displaced counts older sessions on the same platform this login ended
	Displaced int `json:"-"`
}

// Register creates a user; an empty user id gets a generated one
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*entity.UserInfo, error) {
	if req.Nickname == "" || len(req.Password) < minPasswordLen {
		return nil, errcode.ErrInvalidParam.Wrap(fmt.Errorf("nickname and a password of at least %d characters are required", minPasswordLen))
	}

	if req.UserId != "" {
		exists, err := s.users.Exists(ctx, req.UserId)
		if err != nil {
			log.CtxError(ctx, "check user exists failed: user_id=%s, error=%v", req.UserId, err)
			return nil, errcode.ErrInternalServer
		}
		if exists {
			return nil, errcode.ErrUserExists
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}

	user := &entity.User{
		Id:       req.UserId,
		Nickname: req.Nickname,
		Password: string(hash),
		Avatar:   req.Avatar,
	}
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	if err := s.users.Create(ctx, user); err != nil {
		log.CtxError(ctx, "create user failed: user_id=%s, error=%v", user.Id, err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "user registered: user_id=%s", user.Id)
	return user.ToUserInfo(), nil
}

// Login checks the password and opens a session that replaces any other on the platform
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetById(ctx, req.UserId)
	if err != nil {
		log.CtxDebug(ctx, "login for unknown user: user_id=%s, error=%v", req.UserId, err)
		return nil, errcode.ErrUserNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return nil, errcode.ErrPasswordWrong
	}

	token, claims, err := jwt.IssueToken(user.Id, req.PlatformId, s.jwt.Secret, s.jwt.ExpireHours)
	if err != nil {
		log.CtxError(ctx, "issue token failed: user_id=%s, error=%v", user.Id, err)
		return nil, errcode.ErrInternalServer
	}
	displaced, err := s.sessions.Open(ctx, claims)
	if err != nil {
		log.CtxError(ctx, "open session failed: user_id=%s, error=%v", user.Id, err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "user logged in: user_id=%s, platform_id=%d, displaced=%d", user.Id, req.PlatformId, len(displaced))
	return &LoginResponse{Token: token, UserInfo: user.ToUserInfo(), Displaced: len(displaced)}, nil
}

// ValidateToken accepts a native token whose session is still active. When the
// store cannot be reached the signature alone is trusted.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(token, s.jwt.Secret)
	if err != nil {
		return nil, err
	}

	status, err := s.sessions.Status(ctx, claims)
	if err != nil {
		log.CtxWarn(ctx, "session lookup failed: user_id=%s, error=%v", claims.UserId, err)
		return claims, nil
	}
	if status != jwt.SessionActive {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}

// Logout ends the session behind token, or every session of userId when all
// is set. External tokens have no session to end.
func (s *AuthService) Logout(ctx context.Context, userId, token string, all bool) error {
	var err error
	switch claims, perr := jwt.ParseToken(token, s.jwt.Secret); {
	case all:
		err = s.sessions.RevokeUser(ctx, userId)
	case perr == nil:
		err = s.sessions.Revoke(ctx, claims)
	default:
		return nil
	}
	if err != nil {
		log.CtxError(ctx, "revoke session failed: user_id=%s, all=%v, error=%v", userId, all, err)
		return errcode.ErrInternalServer
	}
	log.CtxInfo(ctx, "user logged out: user_id=%s, all=%v", userId, all)
	return nil
}
