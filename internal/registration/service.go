// Package registration implements sign-up with email verification on top of
// two ephemeral caches: registrations awaiting verification, and emails that
// recently completed sign-up.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"paperpedia/api/internal/cache"
	"paperpedia/api/internal/store"
	"paperpedia/api/internal/validation"
)

var (
	ErrRegistrationPending = errors.New("email already has a pending registration")
	ErrRecentlyRegistered  = errors.New("email was registered recently")
	ErrEmailInUse          = errors.New("email already in use")
	ErrInvalidVerification = errors.New("verification link is invalid or expired")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrMailDelivery        = errors.New("could not send verification email")
)

// PendingError reports an existing registration for the same email and how
// long until it lapses.
type PendingError struct {
	RetryAfter time.Duration
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("email already in a session; try again in %d minutes", e.Minutes())
}

func (e *PendingError) Unwrap() error { return ErrRegistrationPending }

// Minutes is RetryAfter rounded up to whole minutes.
func (e *PendingError) Minutes() int { return minutes(e.RetryAfter) }

// Pending is a registration awaiting email verification.
type Pending struct {
	Username     string
	Email        string
	PasswordHash string
}

func NewPendingCache(timeout time.Duration) *cache.Cache[Pending] {
	return cache.New[Pending]("pending_registrations", timeout,
		cache.WithField(func(p Pending) string { return p.Email }))
}

// NewRecentCache maps new user ids to their email.
func NewRecentCache(timeout time.Duration) *cache.Cache[string] {
	return cache.New[string]("recent_signups", timeout,
		cache.WithField(func(email string) string { return email }))
}

type UserStore interface {
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	ActiveUserByEmail(ctx context.Context, email string) (*store.User, error)
}

type Mailer interface {
	SendVerification(ctx context.Context, to, userName, link string, validFor time.Duration) error
}

type Service struct {
	users       UserStore
	mailer      Mailer
	pending     *cache.Cache[Pending]
	recent      *cache.Cache[string]
	validate    *validation.Validator
	frontendURL string
	hashCost    int
	log         logrus.FieldLogger
}

type Option func(*Service)

func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(users UserStore, mailer Mailer, pending *cache.Cache[Pending], recent *cache.Cache[string], frontendURL string, opts ...Option) *Service {
	s := &Service{
		users:       users,
		mailer:      mailer,
		pending:     pending,
		recent:      recent,
		validate:    validation.New(),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		hashCost:    bcrypt.DefaultCost,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=40"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type RegisterResult struct {
	Token     string
	ExpiresIn time.Duration
}

// TimeLeftMinutes is the verification window rounded up to whole minutes.
func (r RegisterResult) TimeLeftMinutes() int {
	return minutes(r.ExpiresIn)
}

// Register parks the registration in the pending cache and mails the
// verification link. Nothing touches the users table until Verify.
func (s *Service) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return RegisterResult{}, err
	}

	if key, ok := s.pending.FindByField(input.Email); ok {
		return RegisterResult{}, &PendingError{RetryAfter: s.pending.Remaining(key)}
	}
	if s.recent.CheckByField(input.Email) {
		return RegisterResult{}, ErrRecentlyRegistered
	}
	existing, err := s.users.ActiveUserByEmail(ctx, input.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	if existing != nil {
		return RegisterResult{}, ErrEmailInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	token := uuid.NewString()
	if holder, ok := s.pending.SetIfFieldAbsent(token, Pending{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
	}); !ok {
		return RegisterResult{}, &PendingError{RetryAfter: s.pending.Remaining(holder)}
	}

	validFor := s.pending.Timeout()
	link := s.frontendURL + "/verify-account/" + token
	if err := s.mailer.SendVerification(ctx, input.Email, input.Username, link, validFor); err != nil {
		s.pending.Delete(token)
		s.log.WithError(err).Warn("verification email failed")
		return RegisterResult{}, fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}

	return RegisterResult{Token: token, ExpiresIn: validFor}, nil
}

// Verify promotes a pending registration to an active user. A token can be
// used once.
func (s *Service) Verify(ctx context.Context, token string) (store.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return store.User{}, ErrInvalidVerification
	}
	pending, ok := s.pending.Take(token)
	if !ok {
		return store.User{}, ErrInvalidVerification
	}

	created, err := s.users.CreateUser(ctx, store.User{
		ID:           uuid.NewString(),
		Username:     pending.Username,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		Active:       true,
	})
	if errors.Is(err, store.ErrEmailTaken) {
		return store.User{}, ErrEmailInUse
	}
	if err != nil {
		return store.User{}, err
	}

	s.recent.Set(created.ID, created.Email)
	return created, nil
}

// dummyHash keeps Authenticate's timing similar for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("paperpedia-timing-guard"), bcrypt.MinCost)

func (s *Service) Authenticate(ctx context.Context, emailAddr, password string) (store.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.users.ActiveUserByEmail(ctx, emailAddr)
	if err != nil {
		return store.User{}, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return *user, nil
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func minutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
