package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"duahabit/internal/auth"
	"duahabit/internal/models"
	"duahabit/internal/storage"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	Store      storage.Store
	Auth       *auth.Manager
	TokenTTL   time.Duration
	RefreshTTL time.Duration
}

func New(store storage.Store, authManager *auth.Manager) *Service {
	return &Service{Store: store, Auth: authManager, TokenTTL: time.Hour, RefreshTTL: 7 * 24 * time.Hour}
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Service) Register(ctx context.Context, email, password, displayName string) (models.User, Tokens, error) {
	hash, err := s.Auth.HashPassword(password)
	if err != nil {
		return models.User{}, Tokens{}, err
	}
	user, err := s.Store.CreateUser(ctx, email, hash, displayName)
	if err != nil {
		return models.User{}, Tokens{}, err
	}
	if _, err := s.Store.EnsureProfile(ctx, user.ID, displayName); err != nil {
		return models.User{}, Tokens{}, err
	}
	tokens, err := s.issueTokens(ctx, user)
	return user, tokens, err
}

func (s *Service) Login(ctx context.Context, email, password string) (models.User, Tokens, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, Tokens{}, ErrInvalidCredentials
		}
		return models.User{}, Tokens{}, err
	}
	if err := s.Auth.ComparePassword(user.PasswordHash, password); err != nil {
		return models.User{}, Tokens{}, ErrInvalidCredentials
	}
	// Profiles are created lazily on first sign-in, which also covers
	// accounts that predate the profile table.
	if _, err := s.Store.EnsureProfile(ctx, user.ID, user.DisplayName); err != nil {
		return models.User{}, Tokens{}, err
	}
	tokens, err := s.issueTokens(ctx, user)
	return user, tokens, err
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	sess, err := s.Store.GetSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, err
	}
	user, err := s.Store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return Tokens{}, err
	}
	return s.issueTokens(ctx, user)
}

func (s *Service) issueTokens(ctx context.Context, user models.User) (Tokens, error) {
	accessToken, err := s.Auth.GenerateToken(user.ID, user.DisplayName, s.TokenTTL)
	if err != nil {
		return Tokens{}, err
	}
	refreshToken, err := s.generateRefreshToken()
	if err != nil {
		return Tokens{}, err
	}
	if err := s.Store.CreateSession(ctx, user.ID, refreshToken, time.Now().Add(s.RefreshTTL)); err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *Service) generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
