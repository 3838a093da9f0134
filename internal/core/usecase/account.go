package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

const (
	minPasswordLength = 6

	// DefaultSessionTTL is the validity of a session token.
	DefaultSessionTTL = 24 * time.Hour
)

// AccountServiceArgs contains the mandatory arguments for the AccountService.
type AccountServiceArgs struct {
	// Users is the user directory.
	Users ports.UserDirectory
}

// AccountServiceOptArgs are the optional arguments of the AccountService.
type AccountServiceOptArgs = func(*AccountService)

// WithSessionSecret sets the HMAC key of the session tokens. Without it a random key is generated,
// so tokens do not survive a restart.
func WithSessionSecret(secret []byte) AccountServiceOptArgs {
	return func(s *AccountService) {
		if len(secret) > 0 {
			s.secret = secret
		}
	}
}

// WithSessionTTL sets the validity of the session tokens.
func WithSessionTTL(ttl time.Duration) AccountServiceOptArgs {
	return func(s *AccountService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithAccountNowFunc overrides the clock validating the session tokens.
func WithAccountNowFunc(nowFunc func() time.Time) AccountServiceOptArgs {
	return func(s *AccountService) {
		s.nowFunc = nowFunc
	}
}

// NewAccountService creates a new AccountService.
func NewAccountService(args AccountServiceArgs, optArgs ...AccountServiceOptArgs) *AccountService {
	s := &AccountService{
		users:     args.Users,
		ttl:       DefaultSessionTTL,
		nowFunc:   time.Now,
		revoked:   map[string]time.Time{},
		listeners: map[int]func(model.AuthState){},
	}
	for _, opt := range optArgs {
		opt(s)
	}
	if s.secret == nil {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			panic(fmt.Errorf("error generating session secret: %w", err))
		}
	}
	return s
}

// AccountService gathers the sign-up and session use-cases.
// Sessions are signed tokens carrying the user id; signed-out tokens are kept until they expire.
type AccountService struct {
	users   ports.UserDirectory
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time

	mu sync.RWMutex
	// revoked maps the id of a signed-out token to its expiry.
	revoked   map[string]time.Time
	listeners map[int]func(model.AuthState)
	nextID    int
}

// NormalizeEmail trims and lower-cases an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a user and opens a session.
func (s *AccountService) SignUp(ctx context.Context, args model.SignUpArgs) (*model.Session, error) {
	name := strings.TrimSpace(args.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty display name", model.ErrInvalidArgument)
	}
	email := NormalizeEmail(args.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", model.ErrInvalidArgument, args.Email)
	}
	if len(args.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password shorter than %d characters", model.ErrInvalidArgument, minPasswordLength)
	}
	if !args.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", model.ErrInvalidArgument, args.Role)
	}

	// CreateHash returns a Argon2id hash of a plain-text password using the
	// provided algorithm parameters. The returned hash follows the format used
	// by the Argon2 reference C implementation.
	hash, err := argon2id.CreateHash(args.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("error creating password hash: %w", err)
	}

	user := &model.User{
		DisplayName:  name,
		Email:        email,
		Role:         args.Role,
		PasswordHash: hash,
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error saving user in directory: %w", err)
	}
	return s.openSession(*user)
}

// SignIn opens a session. It returns model.ErrAuth on unknown email or wrong password.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	user, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrAuth
	}
	if err != nil {
		return nil, fmt.Errorf("error reading user from directory: %w", err)
	}
	match, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("error comparing password hash: %w", err)
	}
	if !match {
		return nil, model.ErrAuth
	}
	return s.openSession(*user)
}

// SignOut closes the session of token. Unknown, expired or already closed tokens are ignored.
func (s *AccountService) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	now := s.nowFunc()
	s.mu.Lock()
	if _, ok := s.revoked[claims.ID]; ok {
		s.mu.Unlock()
		return nil
	}
	for id, expiresAt := range s.revoked {
		if !now.Before(expiresAt) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	s.mu.Unlock()

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		// the session is closed anyway
		user = &model.User{ID: claims.Subject}
	}
	s.publish(model.AuthState{User: *user, SignedIn: false})
	return nil
}

// Authenticate returns the user of the session token or model.ErrAuth.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrAuth, err.Error())
	}
	s.mu.RLock()
	_, revoked := s.revoked[claims.ID]
	s.mu.RUnlock()
	if revoked {
		return nil, fmt.Errorf("%w: session closed", model.ErrAuth)
	}
	user, err := s.users.GetUser(ctx, claims.Subject)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrAuth
	}
	if err != nil {
		return nil, fmt.Errorf("error reading user from directory: %w", err)
	}
	return user, nil
}

// OnAuthStateChanged registers listener for every sign-in and sign-out.
// The returned disposer is idempotent.
func (s *AccountService) OnAuthStateChanged(listener func(model.AuthState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *AccountService) openSession(user model.User) (*model.Session, error) {
	now := s.nowFunc()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("error signing session token: %w", err)
	}
	s.publish(model.AuthState{User: user, SignedIn: true})
	return &model.Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// parse validates the signature and the expiry of token.
func (s *AccountService) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errors.New("token without session or subject")
	}
	return claims, nil
}

func (s *AccountService) publish(state model.AuthState) {
	s.mu.RLock()
	listeners := make([]func(model.AuthState), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()
	for _, l := range listeners {
		l(state)
	}
}
