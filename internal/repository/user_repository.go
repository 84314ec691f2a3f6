package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
)

// UserRepository handles the users table.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new account. The unique index on username is the last
// line of defense against duplicate registrations; callers should check
// first and treat gorm.ErrDuplicatedKey as "already taken".
func (r *UserRepository) Create(ctx context.Context, username, passwordHash string) (*model.User, error) {
	user := model.User{Username: username, PasswordHash: passwordHash}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
