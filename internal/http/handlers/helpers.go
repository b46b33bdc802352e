package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/http/middleware"
)

var errUserNotFound = errors.New("пользователь не найден в контексте")

// currentUserID извлекает userID из контекста.
func currentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, errUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, errUserNotFound
	}

	return userID, nil
}

// currentUserRole извлекает роль пользователя из контекста. Отсутствие роли не ошибка.
func currentUserRole(c *gin.Context) string {
	return c.GetString(middleware.ContextRoleKey)
}

func parseIntQuery(c *gin.Context, key string, defaultValue int) (int, error) {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(valueStr)
}

// parseTimeQuery принимает RFC3339 или дату YYYY-MM-DD.
func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	valueStr := c.Query(key)
	if valueStr == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, valueStr); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, valueStr)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseUUIDQuery(c *gin.Context, key string) (*uuid.UUID, error) {
	valueStr := c.Query(key)
	if valueStr == "" {
		return nil, nil
	}
	id, err := uuid.Parse(valueStr)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
