package auth

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMalformedCredentials = errors.New("email or password missing")
	ErrBadCredentials       = errors.New("bad credentials")
	ErrInactive             = errors.New("account disabled")
)

// ValidationError maps each rejected register field to a message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	return "invalid fields: " + strings.Join(names, ", ")
}

type UserStore interface {
	Create(ctx context.Context, u User) (int64, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByID(ctx context.Context, id int64) (*User, error)
}

type Service struct {
	Users  UserStore
	Tokens *Tokens
	Cost   int // bcrypt cost, bcrypt.DefaultCost when 0
}

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what register and login hand back to the client.
type Session struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}()

var fieldMessages = map[string]string{
	"required": "required",
	"email":    "invalid email",
	"min":      "8 characters minimum",
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		ve := &ValidationError{Fields: map[string]string{}}
		for _, fe := range verrs {
			ve.Fields[fe.Field()] = fieldMessages[fe.Tag()]
		}
		return nil, ve
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost())
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         RoleClient,
		Active:       true,
		PasswordHash: string(hash),
	}
	u.ID, err = s.Users.Create(ctx, u)
	if err != nil {
		return nil, err
	}
	return s.session(&u)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrMalformedCredentials
	}
	u, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return nil, ErrBadCredentials
	}
	if !u.Active {
		return nil, ErrInactive
	}
	return s.session(u)
}

// Me returns the current user; a token for a deleted user reads as ErrUserNotFound.
func (s *Service) Me(ctx context.Context, userID int64) (*User, error) {
	return s.Users.ByID(ctx, userID)
}

func (s *Service) session(u *User) (*Session, error) {
	tok, exp, err := s.Tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: tok, ExpiresAt: exp}, nil
}

func (s *Service) cost() int {
	if s.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return s.Cost
}
