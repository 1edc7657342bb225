package handlers

import (
	"errors"
	"net/http"
	"strings"

	"task-tracker-api/internal/auth"
	"task-tracker-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=1,max=100"`
	Password string `json:"password" binding:"required,min=1"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Login handles POST /api/login. Unknown usernames are registered on first
// login; known ones must match the stored password.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. Username and password are required.",
		})
		return
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		h.respondError(c, auth.ErrPasswordTooLong)
		return
	}
	username := strings.TrimSpace(req.Username)
	db := h.DB.WithContext(c.Request.Context())

	var user models.User
	err := db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, herr := auth.HashPassword(req.Password)
		if herr != nil {
			h.respondError(c, herr)
			return
		}
		created := models.User{ID: uuid.NewString(), Username: username, PasswordHash: hash}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).Create(&created)
		if res.Error != nil {
			h.respondError(c, res.Error)
			return
		}
		if res.RowsAffected == 1 {
			h.Logger.Info("user registered", "user_id", created.ID)
			user, err = created, nil
		} else {
			// a concurrent first login registered the name; check against it
			err = db.Where("username = ?", username).First(&user).Error
		}
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Message:  "Login successful",
	})
}
