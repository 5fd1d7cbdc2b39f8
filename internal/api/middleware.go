package api

import (
	"net/http"
	"strings"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// consoleActor действующее лицо при отключённой авторизации
var consoleActor = mine.Owner{ID: uuid.Nil, Name: "console"}

// jwtMiddleware проверяет JWT токен в заголовке Authorization
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rs.authOn {
			c.Set("actor", consoleActor)
			c.Set("is_admin", true)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Отсутствует токен авторизации",
			})
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Неверный формат токена",
			})
			return
		}

		claims, err := rs.auth.ValidateJWT(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Недействительный токен",
			})
			return
		}

		c.Set("actor", claims.Owner())
		c.Set("is_admin", claims.IsAdmin)
		c.Next()
	}
}

// adminMiddleware проверяет, что пользователь является администратором
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Недостаточно прав доступа",
			})
			return
		}
		c.Next()
	}
}

func actorOf(c *gin.Context) mine.Owner {
	if v, ok := c.Get("actor"); ok {
		if owner, ok := v.(mine.Owner); ok {
			return owner
		}
	}
	return consoleActor
}

func isAdmin(c *gin.Context) bool {
	return c.GetBool("is_admin")
}
