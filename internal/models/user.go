package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole represents a user's role on the platform
type UserRole string

const (
	RoleCustomer   UserRole = "customer"
	RoleOperator   UserRole = "operator"
	RoleCompliance UserRole = "compliance"
	RoleAdmin      UserRole = "admin"
)

// User represents a platform user or back-office operator
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"type:varchar(255);not null" json:"-"`
	FirstName string         `gorm:"type:varchar(255)" json:"first_name"`
	LastName  string         `gorm:"type:varchar(255)" json:"last_name"`
	Phone     string         `gorm:"type:varchar(30)" json:"phone"`
	Role      UserRole       `gorm:"type:varchar(20);default:'customer'" json:"role"`
	IsAdmin   bool           `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate sets the user ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
