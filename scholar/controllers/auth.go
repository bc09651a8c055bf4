package controllers

import (
	"context"
	"errors"
	"strings"

	"scholar/scholar/middlewares"
	"scholar/scholar/sources/db/dao"
	"scholar/scholar/sources/db/models"
	"scholar/scholar/utils/logging"
	"scholar/scholar/utils/types"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrMissingFields    = errors.New("missing required fields")
	ErrUserExists       = errors.New("username or email already registered")
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
)

const minPasswordLen = 8

type AuthController struct {
	userDAO *dao.UserDAO
	tokens  *middlewares.TokenManager
}

func NewAuthController(userDAO *dao.UserDAO, tokens *middlewares.TokenManager) *AuthController {
	return &AuthController{
		userDAO: userDAO,
		tokens:  tokens,
	}
}

func (c *AuthController) Register(ctx context.Context, req types.RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}
	if len(req.Password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	// duplicates surface from the unique indexes
	user, err := c.userDAO.CreateUser(ctx, username, email, string(hash))
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	logging.AppLogger.Info("user registered", zap.Int("user_id", user.ID))
	return user, nil
}

func (c *AuthController) Login(ctx context.Context, req types.LoginRequest) (*types.LoginResponse, error) {
	login := strings.TrimSpace(req.UsernameOrEmail)
	if login == "" || req.Password == "" {
		return nil, ErrMissingFields
	}
	user, err := c.userDAO.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrWrongPassword
	}
	access, err := c.tokens.Issue(user.ID, middlewares.TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := c.tokens.Issue(user.ID, middlewares.TokenRefresh)
	if err != nil {
		return nil, err
	}
	return &types.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *AuthController) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := c.tokens.Parse(ctx, refreshToken, middlewares.TokenRefresh)
	if err != nil {
		return "", err
	}
	return c.tokens.Issue(claims.UserID, middlewares.TokenAccess)
}

func (c *AuthController) Logout(ctx context.Context, claims *middlewares.Claims) error {
	return c.tokens.Revoke(ctx, claims)
}

func (c *AuthController) Me(ctx context.Context, userID int) (*models.User, error) {
	user, err := c.userDAO.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ForgetPassword issues a reset token for the account. There is no mail
// transport, so the token itself goes to the debug log only. Unknown
// emails succeed silently.
func (c *AuthController) ForgetPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrMissingFields
	}
	user, err := c.userDAO.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		logging.AppLogger.Info("password reset requested for unknown email")
		return nil
	}
	token, err := c.tokens.Issue(user.ID, middlewares.TokenReset)
	if err != nil {
		return err
	}
	logging.AppLogger.Info("password reset token issued", zap.Int("user_id", user.ID))
	logging.AppLogger.Debug("password reset token", zap.Int("user_id", user.ID), zap.String("reset_token", token))
	return nil
}

// ResetPassword sets a new password; the reset token is single-use.
func (c *AuthController) ResetPassword(ctx context.Context, req types.ResetPasswordRequest) error {
	if req.Password == "" || req.ConfirmPassword == "" || req.Token == "" {
		return ErrMissingFields
	}
	if req.Password != req.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if len(req.Password) < minPasswordLen {
		return ErrPasswordTooShort
	}
	claims, err := c.tokens.Parse(ctx, req.Token, middlewares.TokenReset)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := c.userDAO.UpdatePassword(ctx, claims.UserID, string(hash)); err != nil {
		return err
	}
	return c.tokens.Revoke(ctx, claims)
}
