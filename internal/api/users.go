package api

import (
	"net/http"
	"strconv"

	"code-judge/internal/auth"

	"github.com/gin-gonic/gin"
)

// AdminListUsers returns every user.
func (s *Server) AdminListUsers(c *gin.Context) {
	users, err := s.auth.ListUsers()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// AdminGetUser returns one user's details.
func (s *Server) AdminGetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "user id must be numeric")
		return
	}
	user, err := s.auth.GetUser(uint(id))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// AdminCreateUser registers a local-credential account.
func (s *Server) AdminCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	user, err := s.auth.Register(req.Email, req.Name, req.Password, req.IsAdmin)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// AdminUpdateUser promotes, demotes, or renames a user.
func (s *Server) AdminUpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "user id must be numeric")
		return
	}
	var upd auth.UserUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "invalid user payload")
		return
	}
	user, err := s.auth.UpdateUser(uint(id), &upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// AdminDeleteUser removes a user; their progress cascades away.
func (s *Server) AdminDeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "user id must be numeric")
		return
	}
	if err := s.auth.DeleteUser(uint(id)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
