package store

import (
	"context"
	"time"
)

// Role is the hierarchical permission level carried by a user.
type Role string

const (
	RoleSalesperson Role = "salesperson"
	RoleManager     Role = "manager"
	RoleAdmin       Role = "admin"
	RoleMaster      Role = "master"
	RoleSuperAdmin  Role = "super_admin"
)

var roleLevels = map[Role]int{
	RoleSalesperson: 1,
	RoleManager:     2,
	RoleAdmin:       3,
	RoleMaster:      4,
	RoleSuperAdmin:  5,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r is min or a higher-privileged role.
// super_admin always admits.
func (r Role) AtLeast(min Role) bool {
	return roleLevels[r] >= roleLevels[min] && roleLevels[r] > 0
}

// User is a platform account. DealershipID is nil only for super_admin.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	DealershipID *int64    `json:"dealershipId,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PasswordResetToken is single-use: the raw 32-byte token is mailed to the
// user, only its bcrypt hash is stored.
type PasswordResetToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// UserStore persists accounts and password-reset tokens.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByDealership(ctx context.Context, dealershipID int64) ([]User, error)
	Update(ctx context.Context, u *User) error
	SetPassword(ctx context.Context, userID int64, passwordHash string) error

	CreateResetToken(ctx context.Context, t *PasswordResetToken) error
	// ActiveResetTokens returns unexpired, unused tokens so the caller can
	// bcrypt-compare the raw token against each candidate hash.
	ActiveResetTokens(ctx context.Context, now time.Time) ([]PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id int64) error
}
