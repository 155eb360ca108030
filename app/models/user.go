package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User is the local projection of an account managed by the identity
// collaborator. Only what the ledger needs is stored here.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email           string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Role            string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status          string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	APIKeyHash      string         `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix    string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt *time.Time     `json:"api_key_created_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// IsAdmin reports whether the user carries the administrative role.
func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const RawAPIKeyPrefix = "rlp_"

// IssueAPIKey generates a new API key, stores its hash on the struct and
// returns the raw secret. Callers must persist the user afterwards.
func (u *User) IssueAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	rawKey := RawAPIKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 12 {
		return "", fmt.Errorf("api key generation failed: key too short")
	}
	now := time.Now()
	u.APIKeyHash = HashAPIKey(rawKey)
	u.APIKeyPrefix = rawKey[:16]
	u.APIKeyCreatedAt = &now
	return rawKey, nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
