package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ipdr-backend/internal/database"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password")
)

type Service struct {
	db   *gorm.DB
	cost int
	now  func() time.Time
}

type Option func(*Service)

func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Session struct {
	Token string
	Name  string
}

func (s *Service) Register(ctx context.Context, name, email, password string) (database.User, error) {
	email = strings.TrimSpace(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return database.User{}, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	user := database.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Status:       database.UserActive,
		CreationTime: s.now().UTC(),
	}

	if err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var count int64
		if err := txn.Model(&database.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("error checking for existing user: %w", err)
		}
		if count > 0 {
			return ErrUserExists
		}
		if err := txn.Create(&user).Error; err != nil {
			return fmt.Errorf("error creating user: %w", err)
		}
		return nil
	}); err != nil {
		if !errors.Is(err, ErrUserExists) {
			slog.Error("error registering user", "email", email, "error", err)
		}
		return database.User{}, err
	}

	slog.Info("registered user", "email", email)
	return user, nil
}

// Login checks the password and returns a placeholder session token. Disabled
// users cannot log in.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)

	var user database.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("error loading user: %w", err)
	}

	if user.Status != database.UserActive {
		return Session{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	name := user.Name
	if name == "" {
		name = user.Email
	}

	return Session{Token: "token-" + user.Email, Name: name}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]database.User, error) {
	var users []database.User
	if err := s.db.WithContext(ctx).Order("creation_time ASC, email ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return users, nil
}

func (s *Service) SetStatus(ctx context.Context, email, status string) error {
	if status != database.UserActive && status != database.UserDisabled {
		return fmt.Errorf("invalid user status '%s'", status)
	}

	result := s.db.WithContext(ctx).Model(&database.User{}).Where("email = ?", email).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("error updating user status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user '%s' not found", email)
	}
	return nil
}
