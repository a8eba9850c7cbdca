package domain

import "time"

// Role is the coarse access level attached to every user.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleNurse, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	Id       UserId
	Email    Email
	PassHash string
	Role     Role

	FirstName      string
	LastName       string
	Phone          string
	LicenseNumber  string // doctors only
	Specialization string // doctors only

	FailedLoginCount int
	LockUntil        *time.Time
	TwoFactorEnabled bool
	EmailVerified    bool
	IsActive         bool

	// Only the one-way hashes are ever stored. Raw tokens leave the
	// system exactly once, inside the outbound email.
	VerificationTokenHash string
	VerificationExpires   *time.Time
	ResetTokenHash        string
	ResetExpires          *time.Time

	LastLogin          *time.Time
	LastPasswordChange *time.Time
	CreatedBy          *UserId // set when an admin provisioned the account
	CreatedAt          time.Time
}

// UserSummary is the redacted shape returned to clients. No hashes, no counters.
type UserSummary struct {
	Id            UserId `json:"id"`
	Email         Email  `json:"email"`
	Role          Role   `json:"role"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		Id:            u.Id,
		Email:         u.Email,
		Role:          u.Role,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
	}
}

// Locked reports whether the lockout window is still open at the given instant.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

type Credentials struct {
	Email    Email
	Password Password
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
