package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gatehouse/internal/apperror"
)

// minPasswordLength is enforced wherever a password is set.
const minPasswordLength = 8

// Handler exposes the auth service over HTTP. It binds and validates
// payloads, delegates to the service, and shapes JSON responses; all
// business rules live in the service.
type Handler struct {
	service Service
}

// NewHandler creates the auth HTTP handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Login handles POST /email/login.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Email == "" {
		return apperror.NewBadRequest("email is required").WithField("email", "required")
	}
	if req.Password == "" {
		return apperror.NewBadRequest("password is required").WithField("password", "required")
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Register handles POST /email/register. In development the confirmation hash is
// echoed back so the flow can be exercised without a mail round-trip.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Email == "" {
		return apperror.NewBadRequest("email is required").WithField("email", "required")
	}
	if len(req.Password) < minPasswordLength {
		return apperror.NewBadRequest("password is too short").WithField("password", "tooShort")
	}

	hash, err := h.service.Register(c.Request().Context(), RegisterInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		return err
	}

	if hash != "" {
		return c.JSON(http.StatusCreated, echo.Map{"hash": hash})
	}
	return c.NoContent(http.StatusCreated)
}

// ConfirmEmail handles POST /email/confirm.
func (h *Handler) ConfirmEmail(c echo.Context) error {
	var req ConfirmEmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Hash == "" {
		return apperror.NewBadRequest("hash is required").WithField("hash", "required")
	}

	if err := h.service.ConfirmEmail(c.Request().Context(), req.Hash); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword handles POST /forgot/password.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Email == "" {
		return apperror.NewBadRequest("email is required").WithField("email", "required")
	}

	hash, err := h.service.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}

	if hash != "" {
		return c.JSON(http.StatusOK, echo.Map{"hash": hash})
	}
	return c.NoContent(http.StatusNoContent)
}

// ResetPassword handles POST /reset/password.
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Hash == "" {
		return apperror.NewBadRequest("hash is required").WithField("hash", "required")
	}
	if len(req.Password) < minPasswordLength {
		return apperror.NewBadRequest("password is too short").WithField("password", "tooShort")
	}

	if err := h.service.ResetPassword(c.Request().Context(), req.Hash, req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Refresh handles POST /refresh. RequireRefresh has already validated the
// token and stashed its session id.
func (h *Handler) Refresh(c echo.Context) error {
	result, err := h.service.Refresh(c.Request().Context(), RefreshSessionID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Me handles GET /me. The body is the user object, or JSON null when the
// account vanished underneath a still-valid token.
func (h *Handler) Me(c echo.Context) error {
	user, err := h.service.Me(c.Request().Context(), Identity(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Update handles PATCH /me.
func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Password != "" && len(req.Password) < minPasswordLength {
		return apperror.NewBadRequest("password is too short").WithField("password", "tooShort")
	}

	user, err := h.service.Update(c.Request().Context(), Identity(c), UpdateInput{
		DisplayName: req.DisplayName,
		Password:    req.Password,
		OldPassword: req.OldPassword,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Delete handles DELETE /me.
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.DeleteAccount(c.Request().Context(), Identity(c).UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Logout handles POST /logout.
func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(c.Request().Context(), Identity(c).SessionID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
