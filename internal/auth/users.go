package auth

import (
	"errors"

	"code-judge/pkg/models"

	"gorm.io/gorm"
)

// ListUsers returns every user ordered by creation.
func (s *Service) ListUsers() ([]models.User, error) {
	var out []models.User
	if err := s.db.Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UserUpdate carries the admin-editable user attributes. Nil fields are left
// untouched.
type UserUpdate struct {
	Name    *string `json:"name"`
	IsAdmin *bool   `json:"is_admin"`
}

// UpdateUser applies an admin edit, typically a promote or demote.
func (s *Service) UpdateUser(id uint, upd *UserUpdate) (*models.User, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.IsAdmin != nil {
		updates["is_admin"] = *upd.IsAdmin
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetUser(id)
}

// DeleteUser removes a user; progress and achievements cascade.
func (s *Service) DeleteUser(id uint) error {
	res := s.db.Delete(&models.User{}, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
