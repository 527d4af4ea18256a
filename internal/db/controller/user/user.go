// Package user provides persistence operations for provider authenticated users.
package user

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/monolith-auth/monolith-auth/internal/db/models"
)

const (
	emailQueryPattern = "email = ?"
)

var (
	// ErrUserNotFound is returned when no row matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailEmpty is returned when creating or looking up a user without an email.
	ErrEmailEmpty = errors.New("user email cannot be empty")
	// ErrDuplicateUser is returned when an insert violates the unique email index.
	ErrDuplicateUser = errors.New("user with this email already exists")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// FindByEmail retrieves a user by email.
func FindByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if email == "" {
		return nil, ErrEmailEmpty
	}

	var u models.User

	result := db.Where(emailQueryPattern, email).First(&u)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, result.Error
	}

	return &u, nil
}

// FindByID retrieves a user by id.
func FindByID(db *gorm.DB, id uint64) (*models.User, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var u models.User

	result := db.First(&u, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, result.Error
	}

	return &u, nil
}

// Create inserts u and fills its id.
// A concurrent insert of the same email yields ErrDuplicateUser; callers re-read instead of failing.
func Create(db *gorm.DB, u *models.User) error {
	if db == nil {
		return ErrDBNil
	}

	if u.Email == "" {
		return ErrEmailEmpty
	}

	if err := db.Create(u).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicateUser
		}

		return err
	}

	return nil
}

// UpdateProfile overwrites the provider supplied fields of an existing user, nil values included.
func UpdateProfile(db *gorm.DB, u *models.User) error {
	if db == nil {
		return ErrDBNil
	}

	if u.ID == 0 {
		return ErrUserNotFound
	}

	return db.Model(&models.User{ID: u.ID}).
		Select("name", "nickname", "picture", "email_verified").
		Updates(u).Error
}

// IsDuplicate reports whether err is a unique constraint violation.
// gorm translates it when TranslateError is set, the message checks cover drivers that don't.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "duplicate entry") // mysql
}

// Repository binds the package functions to a database handle and a request context.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a Repository over db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByEmail see FindByEmail.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return FindByEmail(r.db.WithContext(ctx), email)
}

// FindByID see FindByID.
func (r *Repository) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	return FindByID(r.db.WithContext(ctx), id)
}

// Create see Create.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	return Create(r.db.WithContext(ctx), u)
}

// UpdateProfile see UpdateProfile.
func (r *Repository) UpdateProfile(ctx context.Context, u *models.User) error {
	return UpdateProfile(r.db.WithContext(ctx), u)
}
