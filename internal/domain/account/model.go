package account

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrNotVerified        = errors.New("email has not been verified, request a new code")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrInvalidResetToken  = errors.New("reset link is invalid or has expired")
	ErrNoProfileImage     = errors.New("no profile image")
	ErrImageNotUploaded   = errors.New("uploaded image not found")
	ErrImagesDisabled     = errors.New("profile images are not configured")
)

// User is a doctor or administrator account.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         auth.Role `db:"role" json:"role"`
	Gender       string    `db:"gender" json:"gender,omitempty"`
	IDNumber     string    `db:"id_number" json:"idNumber,omitempty"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// ProfileImage points a user at an object in the blob store.
type ProfileImage struct {
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	StorageID string    `db:"storage_id" json:"storageId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,notblank,nodigits" msg:"required=Name is required;notblank=Name is required;nodigits=Name cannot contain numbers"`
	Email    string `json:"email" validate:"required,email" msg:"required=Email is required;email=Invalid email"`
	Password string `json:"password" validate:"required,min=6" msg:"Password must be at least 6 characters"`
	Gender   string `json:"gender" validate:"omitempty,oneof=Male Female Other" msg:"Select gender"`
	IDNumber string `json:"idNumber"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" msg:"invalid email or password"`
	Password string `json:"password" validate:"required" msg:"invalid email or password"`
}

// ProfileFields are the editable parts of a user profile.
type ProfileFields struct {
	Name     string `json:"name" validate:"required,notblank,nodigits" msg:"required=Name is required;notblank=Name is required;nodigits=Name cannot contain numbers"`
	Gender   string `json:"gender" validate:"omitempty,oneof=Male Female Other" msg:"Select gender"`
	IDNumber string `json:"idNumber"`
	Phone    string `json:"phone" validate:"omitempty,phone10" msg:"Phone must be 10 digits"`
}

// LoginResult is returned by a successful sign-in.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
	Role      auth.Role `json:"role"`
}

// UploadTicket lets a client put an image straight into the blob store.
type UploadTicket struct {
	UploadURL string    `json:"uploadUrl"`
	StorageID string    `json:"storageId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
