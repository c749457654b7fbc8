// Package services contains the chat server's business logic on top of the
// repositories: accounts and tokens, conversations and history, the
// realtime persistence store and media uploads.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

const (
	maxUserNameLength = 64
	searchLimit       = 20
)

// UserService registers users, checks their passwords and mints access
// tokens.
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

func validateCredentials(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", common.ErrorValidation)
	}
	if utf8.RuneCountInString(username) > maxUserNameLength {
		return fmt.Errorf("%w: username longer than %d characters", common.ErrorValidation, maxUserNameLength)
	}
	return nil
}

// SignUp creates the user and returns an access token for it. A taken
// username yields common.ErrorAlreadyExists.
func (s *UserService) SignUp(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return "", err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{UserName: username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return "", err
		}
		return "", fmt.Errorf("error creating user: %w", err)
	}

	return s.generateAccessToken(user)
}

// SignIn checks the password and returns a fresh access token. Unknown users
// and wrong passwords both yield common.ErrorUnauthorized.
func (s *UserService) SignIn(ctx context.Context, username, password string) (string, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", common.ErrorUnauthorized
	}

	return s.generateAccessToken(user)
}

// Search finds users by a case-insensitive name fragment, never returning
// the caller.
func (s *UserService) Search(ctx context.Context, callerID int64, query string) ([]models.Participant, error) {
	return s.repomanager.Users(s.db).Search(ctx, strings.TrimSpace(query), callerID, searchLimit)
}

func (s *UserService) generateAccessToken(user *models.User) (string, error) {
	token, err := auth.GenerateToken(user.ID, user.UserName, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}
