package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// AuthHandlers issues the admin JWT used by the management API.
type AuthHandlers struct {
	adminToken string
	jwtSecret  []byte
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(adminToken, jwtSecret string) *AuthHandlers {
	return &AuthHandlers{
		adminToken: adminToken,
		jwtSecret:  []byte(jwtSecret),
	}
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Token string `json:"token"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login exchanges the static admin token for a short-lived JWT.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if h.adminToken == "" {
		return echo.NewHTTPError(http.StatusForbidden, "Admin API is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(h.adminToken)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid admin token")
	}

	expiry := 12 * time.Hour
	claims := jwt.MapClaims{
		"sub": "admin",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, LoginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiry.Seconds()),
	})
}
