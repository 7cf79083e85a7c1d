package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rentflow/backend/internal/access"
	"github.com/rentflow/backend/internal/middleware"
	"github.com/rentflow/backend/internal/models"
	"github.com/rentflow/backend/pkg/response"
	"github.com/rentflow/backend/pkg/utils"
)

// lastLoginTimeout bounds the best-effort last_login_at write.
const lastLoginTimeout = 2 * time.Second

// Store is the profile persistence the handler needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Create(ctx context.Context, email, passwordHash, fullName string, role models.Role, params *CreateProfileParams) (*models.Profile, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	FullName    string `json:"full_name" binding:"required"`
	Role        string `json:"role"` // optional, defaults to owner
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT and the freshly resolved access.
type TokenResponse struct {
	Token   string               `json:"token"`
	Profile models.ProfilePublic `json:"profile"`
	Access  access.Result        `json:"access"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo       Store
	jwt        *JWTService
	dispatcher *access.Dispatcher
	reserved   func(email string) bool
	logger     *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo Store, jwt *JWTService, dispatcher *access.Dispatcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, dispatcher: dispatcher, logger: logger}
}

// ReserveEmails makes Register refuse addresses for which reserved returns true.
func (h *Handler) ReserveEmails(reserved func(email string) bool) {
	h.reserved = reserved
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleOwner
	if req.Role != "" {
		switch models.Role(req.Role) {
		case models.RoleOwner, models.RoleStaff:
			role = models.Role(req.Role)
		default:
			response.BadRequest(c, "invalid role")
			return
		}
	}

	if h.reserved != nil && h.reserved(req.Email) {
		h.logger.Warn("registration with reserved email refused", zap.String("client_ip", c.ClientIP()))
		response.Conflict(c, "email already registered")
		return
	}

	_, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err == nil {
		response.Conflict(c, "email already registered")
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		response.Internal(c, "failed to check email")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	profile, err := h.repo.Create(c.Request.Context(), req.Email, hash, req.FullName, role, &CreateProfileParams{
		CompanyName: req.CompanyName,
		Phone:       req.Phone,
	})
	if err != nil {
		h.logger.Error("create profile failed", zap.Error(err))
		response.Internal(c, "failed to create profile")
		return
	}

	h.issue(c, http.StatusCreated, profile, access.EventSignedIn)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	profile, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, profile.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	h.touchLastLogin(c.Request.Context(), profile.ID)
	h.issue(c, http.StatusOK, profile, access.EventSignedIn)
}

// Refresh handles POST /auth/refresh. Issues a new token and re-resolves access.
func (h *Handler) Refresh(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	profile, err := h.repo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Unauthorized(c, "profile not found")
		return
	}
	h.issue(c, http.StatusOK, profile, access.EventTokenRefreshed)
}

// Logout handles POST /auth/logout. Drops the cached access of the caller.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	h.dispatcher.Dispatch(c.Request.Context(), access.Event{
		Type:     access.EventSignedOut,
		Identity: access.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role},
	})
	response.NoContent(c)
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	profile, err := h.repo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.NotFound(c, "profile not found")
		return
	}
	response.OK(c, profile.ToPublic())
}

func (h *Handler) issue(c *gin.Context, status int, profile *models.Profile, ev access.EventType) {
	token, err := h.jwt.Generate(profile)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	res := h.dispatcher.Dispatch(c.Request.Context(), access.Event{
		Type:     ev,
		Identity: access.Identity{UserID: profile.ID, Email: profile.Email, Role: string(profile.Role)},
	})
	profile.SubscriptionStatus = string(res.Status)
	c.JSON(status, response.Body{Success: true, Data: TokenResponse{Token: token, Profile: profile.ToPublic(), Access: res}})
}

// touchLastLogin never fails the login; the write is bounded and detached from client cancellation.
func (h *Handler) touchLastLogin(ctx context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lastLoginTimeout)
	defer cancel()
	if err := h.repo.UpdateLastLogin(ctx, id, time.Now()); err != nil {
		h.logger.Warn("last login update failed", zap.String("user_id", id.String()), zap.Error(err))
	}
}
