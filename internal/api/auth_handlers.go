package api

import (
	"net/http"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/gin-gonic/gin"
)

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Message   string `json:"message"`
	PlayerID  string `json:"player_id,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
}

// handleLogin выдаёт JWT по учётной записи из конфигурации
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	account, ok := rs.accounts.Verify(req.Username, req.Password)
	if !ok {
		rs.log.Warn("🔐 Неудачный вход: %s", req.Username)
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}

	player := mine.Owner{ID: account.PlayerID(), Name: account.Name}
	token, expiresAt, err := rs.auth.GenerateJWT(player, account.Admin)
	if err != nil {
		rs.log.Error("❌ Ошибка генерации JWT для %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	rs.log.Info("🎫 JWT выдан %s (admin=%v)", account.Name, account.Admin)
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		Message:   "Успешная авторизация",
		PlayerID:  player.ID.String(),
		IsAdmin:   account.Admin,
	})
}
