package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/auth"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
)

// UserCreator persists new accounts.
type UserCreator interface {
	CreateUser(ctx context.Context, u *storage.User) error
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	users      UserCreator
	authn      *auth.Authenticator
	issuer     *auth.TokenIssuer
	bcryptCost int
	logger     logger.Logger
	validator  *validator.Validate
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users UserCreator, authn *auth.Authenticator, issuer *auth.TokenIssuer, bcryptCost int, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		authn:      authn,
		issuer:     issuer,
		bcryptCost: bcryptCost,
		logger:     logger.Component(log, "auth"),
		validator:  newValidator(),
	}
}

// Register handles POST /api/v1/auth/register
// @Summary Register a new account
// @Description Create an account and return an access token for it
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body models.CredentialsRequest true "Email and password"
// @Success 201 {object} models.TokenResponse "Account created"
// @Failure 400 {object} response.ErrorResponse "Invalid body or email already registered"
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CredentialsRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Validation failed",
			map[string]interface{}{"password": "maxbytes"}, getRequestID(ctx))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to hash password", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, response.MsgInternalServer, getRequestID(ctx))
		return
	}

	u := &storage.User{Email: req.Email, PasswordHash: hash}
	if err := h.users.CreateUser(ctx, u); err != nil {
		if storage.IsDuplicateKey(err) {
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, response.MsgEmailRegistered, getRequestID(ctx))
			return
		}
		h.logger.ErrorContext(ctx, "Failed to create user", "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	token, err := h.issuer.Issue(u.Email)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to issue token", "user_id", u.ID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, response.MsgInternalServer, getRequestID(ctx))
		return
	}

	h.logger.InfoContext(ctx, "User registered", "user_id", u.ID)
	response.JSON(w, http.StatusCreated, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Login handles POST /api/v1/auth/login
// @Summary Log in
// @Description Exchange email and password for an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body models.CredentialsRequest true "Email and password"
// @Success 200 {object} models.TokenResponse "Access token"
// @Failure 400 {object} response.ErrorResponse "Invalid request body"
// @Failure 401 {object} response.ErrorResponse "Invalid credentials"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CredentialsRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	token, err := h.authn.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrMismatchedPassword) {
			response.Error(w, http.StatusUnauthorized, response.ErrCodeUnauthorized, response.MsgInvalidCredentials, getRequestID(ctx))
			return
		}
		h.logger.ErrorContext(ctx, "Login failed", "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}
