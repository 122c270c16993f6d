package user

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password  string    `gorm:"not null;column:password" json:"-"`
	FullName  string    `gorm:"column:full_name" json:"full_name"`
	Role      string    `gorm:"not null;column:role;default:user" json:"role"`
	IsActive  bool      `gorm:"not null;column:is_active;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return "app_user" }

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }
