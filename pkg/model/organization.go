package model

import (
	"time"

	"github.com/google/uuid"
)

type Company struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string    `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Status    bool      `gorm:"not null" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Company) TableName() string { return TableCompanies }

type Group struct {
	Base
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

func (Group) TableName() string { return TableGroups }

type Role struct {
	Base
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

func (Role) TableName() string { return TableRoles }

// UserInGroup links an externally managed user identity to a group.
type UserInGroup struct {
	Base
	UserID  string    `gorm:"size:64;not null;index" json:"user_id"`
	GroupID uuid.UUID `gorm:"type:uuid;not null;index" json:"group_id"`
}

func (UserInGroup) TableName() string { return TableUserInGroups }

type GroupInRole struct {
	Base
	GroupID uuid.UUID `gorm:"type:uuid;not null;index" json:"group_id"`
	RoleID  uuid.UUID `gorm:"type:uuid;not null;index" json:"role_id"`
}

func (GroupInRole) TableName() string { return TableGroupInRoles }
