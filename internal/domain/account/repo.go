package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByRole(ctx context.Context, role auth.Role) ([]*User, error)
}

type ImageRepository interface {
	Upsert(ctx context.Context, img *ProfileImage) error
	Get(ctx context.Context, userID uuid.UUID) (*ProfileImage, error)
}
