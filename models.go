package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the principal's role
type Role string

const (
	// RoleTalent is a creator managed by the agency
	RoleTalent Role = "talent"
	// RoleAdmin is a back office operator
	RoleAdmin Role = "admin"
	// RoleSuperAdmin is an admin that can manage other admins
	RoleSuperAdmin Role = "superadmin"
)

// Principal is the authenticated identity for the current session.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Admin is a privileged account, verified against its stored secret
// instead of the identity provider.
type Admin struct {
	bun.BaseModel `bun:"table:admins,alias:adm"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Password      string     `bun:"password,notnull" json:"-"`
	Name          string     `bun:"name" json:"name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// User maps an identity provider user id to its role.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// TalentProfile is the profile record for talent principals.
type TalentProfile struct {
	bun.BaseModel `bun:"table:talent_profiles,alias:tp"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID      `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	Email         string         `bun:"email" json:"email,omitempty"`
	FullName      string         `bun:"full_name" json:"full_name,omitempty"`
	StageName     string         `bun:"stage_name" json:"stage_name,omitempty"`
	Bio           string         `bun:"bio" json:"bio,omitempty"`
	Phone         string         `bun:"phone" json:"phone,omitempty"`
	AvatarURL     string         `bun:"avatar_url" json:"avatar_url,omitempty"`
	Category      string         `bun:"category" json:"category,omitempty"`
	Location      string         `bun:"location" json:"location,omitempty"`
	Socials       map[string]any `bun:"socials,type:jsonb" json:"socials,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AdminProfile is the profile record for admin and superadmin principals.
type AdminProfile struct {
	bun.BaseModel `bun:"table:admin_profiles,alias:ap"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Phone         string     `bun:"phone" json:"phone,omitempty"`
	AvatarURL     string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Profile is the role specific record for a principal, with the role tag
// merged in. Exactly one of Talent or Admin is set.
type Profile struct {
	Role   Role           `json:"role"`
	Talent *TalentProfile `json:"talent,omitempty"`
	Admin  *AdminProfile  `json:"admin,omitempty"`
}

// NewTalentProfile wraps a talent record
func NewTalentProfile(record *TalentProfile) *Profile {
	return &Profile{Role: RoleTalent, Talent: record}
}

// NewAdminProfile wraps an admin record, role must be admin or superadmin
func NewAdminProfile(role Role, record *AdminProfile) *Profile {
	if !role.IsPrivileged() {
		role = RoleAdmin
	}
	return &Profile{Role: role, Admin: record}
}

// Validate checks the union holds exactly one record matching the role.
func (p *Profile) Validate() error {
	if p == nil {
		return ErrNoProfile
	}

	switch {
	case p.Role == RoleTalent && p.Talent != nil && p.Admin == nil:
		return nil
	case p.Role.IsPrivileged() && p.Admin != nil && p.Talent == nil:
		return nil
	}

	return invalidInput("profile must hold exactly one record matching its role", map[string]any{
		"role": p.Role,
	})
}

// UserID returns the id of the principal that owns the profile.
func (p *Profile) UserID() uuid.UUID {
	switch {
	case p == nil:
		return uuid.Nil
	case p.Talent != nil:
		return p.Talent.UserID
	case p.Admin != nil:
		return p.Admin.UserID
	}
	return uuid.Nil
}

// DisplayName is the name shown in the UI chrome
func (p *Profile) DisplayName() string {
	switch {
	case p == nil:
		return ""
	case p.Talent != nil:
		if p.Talent.StageName != "" {
			return p.Talent.StageName
		}
		return p.Talent.FullName
	case p.Admin != nil:
		return p.Admin.Name
	}
	return ""
}

// Clone returns a deep enough copy for snapshot consumers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}

	out := &Profile{Role: p.Role}
	if p.Talent != nil {
		t := *p.Talent
		if p.Talent.Socials != nil {
			t.Socials = make(map[string]any, len(p.Talent.Socials))
			for k, v := range p.Talent.Socials {
				t.Socials[k] = v
			}
		}
		out.Talent = &t
	}
	if p.Admin != nil {
		a := *p.Admin
		out.Admin = &a
	}
	return out
}

// RememberedCredential is persisted only when the user opts in.
type RememberedCredential struct {
	Email    string `json:"email"`
	Remember bool   `json:"remember"`
}

// StorageEntry is a durable key/value row backing BunStorage.
type StorageEntry struct {
	bun.BaseModel `bun:"table:client_storage,alias:cs"`
	Key           string    `bun:"key,pk" json:"key"`
	Value         string    `bun:"value,notnull" json:"value"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}
