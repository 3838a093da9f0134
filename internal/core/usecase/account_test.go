package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rbroggi/recyclo/internal/actors/memory"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_SignUp(t *testing.T) {
	tests := []struct {
		name        string
		args        model.SignUpArgs
		expectedErr error
	}{
		{
			name: "valid recycler",
			args: model.SignUpArgs{DisplayName: "Ana", Email: "  Ana@Example.com ", Password: "secret123", Role: model.RoleRecycler},
		},
		{
			name:        "missing name",
			args:        model.SignUpArgs{Email: "ana@example.com", Password: "secret123", Role: model.RoleRecycler},
			expectedErr: model.ErrInvalidArgument,
		},
		{
			name:        "bad email",
			args:        model.SignUpArgs{DisplayName: "Ana", Email: "ana", Password: "secret123", Role: model.RoleRecycler},
			expectedErr: model.ErrInvalidArgument,
		},
		{
			name:        "short password",
			args:        model.SignUpArgs{DisplayName: "Ana", Email: "ana@example.com", Password: "123", Role: model.RoleRecycler},
			expectedErr: model.ErrInvalidArgument,
		},
		{
			name:        "unknown role",
			args:        model.SignUpArgs{DisplayName: "Ana", Email: "ana@example.com", Password: "secret123", Role: "admin"},
			expectedErr: model.ErrInvalidArgument,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			svc := NewAccountService(AccountServiceArgs{Users: memory.NewUserDirectory()})
			session, err := svc.SignUp(context.Background(), test.args)
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, session.Token)
			assert.NotEmpty(t, session.User.ID)
			assert.Equal(t, "ana@example.com", session.User.Email)
			assert.NotEqual(t, test.args.Password, session.User.PasswordHash)
		})
	}
}

func TestAccountService_Sessions(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(AccountServiceArgs{Users: memory.NewUserDirectory()})

	var states []model.AuthState
	dispose := svc.OnAuthStateChanged(func(s model.AuthState) { states = append(states, s) })

	session, err := svc.SignUp(ctx, model.SignUpArgs{DisplayName: "Ana", Email: "ana@example.com", Password: "secret123", Role: model.RoleCenter})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, model.SignUpArgs{DisplayName: "Other", Email: "ANA@example.com", Password: "secret123", Role: model.RoleRecycler})
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	user, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, user.ID)

	_, err = svc.SignIn(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, model.ErrAuth)
	_, err = svc.SignIn(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, model.ErrAuth)

	second, err := svc.SignIn(ctx, " ANA@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEqual(t, session.Token, second.Token)

	require.NoError(t, svc.SignOut(ctx, session.Token))
	require.NoError(t, svc.SignOut(ctx, session.Token))
	_, err = svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, model.ErrAuth)
	_, err = svc.Authenticate(ctx, second.Token)
	require.NoError(t, err)

	dispose()
	dispose()
	require.NoError(t, svc.SignOut(ctx, second.Token))

	require.Len(t, states, 3)
	assert.True(t, states[0].SignedIn)
	assert.True(t, states[1].SignedIn)
	assert.False(t, states[2].SignedIn)
	assert.Equal(t, session.User.ID, states[2].User.ID)
}

func TestAccountService_SessionExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: dummyTime}
	svc := NewAccountService(AccountServiceArgs{Users: memory.NewUserDirectory()},
		WithSessionSecret([]byte("test-secret")),
		WithSessionTTL(time.Hour),
		WithAccountNowFunc(clock.Now),
	)

	session, err := svc.SignUp(ctx, model.SignUpArgs{DisplayName: "Ana", Email: "ana@example.com", Password: "secret123", Role: model.RoleCenter})
	require.NoError(t, err)
	assert.Equal(t, dummyTime.Add(time.Hour), session.ExpiresAt)

	clock.Set(dummyTime.Add(59 * time.Minute))
	_, err = svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)

	clock.Set(dummyTime.Add(time.Hour + time.Second))
	_, err = svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, model.ErrAuth)

	other := NewAccountService(AccountServiceArgs{Users: memory.NewUserDirectory()}, WithAccountNowFunc(clock.Now))
	_, err = other.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, model.ErrAuth, "token signed with another secret")

	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, model.ErrAuth)
}

func TestAccountService_RevokedSessionsAreForgottenOnExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: dummyTime}
	users := memory.NewUserDirectory()
	svc := NewAccountService(AccountServiceArgs{Users: users}, WithSessionTTL(time.Hour), WithAccountNowFunc(clock.Now))

	first, err := svc.SignUp(ctx, model.SignUpArgs{DisplayName: "Ana", Email: "ana@example.com", Password: "secret123", Role: model.RoleCenter})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := svc.SignIn(ctx, "ana@example.com", "secret123")
		require.NoError(t, err)
	}
	assert.Empty(t, svc.revoked, "open sessions hold no server state")

	require.NoError(t, svc.SignOut(ctx, first.Token))
	assert.Len(t, svc.revoked, 1)
	_, err = svc.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, model.ErrAuth)

	clock.Set(dummyTime.Add(30 * time.Minute))
	second, err := svc.SignIn(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	clock.Set(dummyTime.Add(time.Hour + time.Minute))
	require.NoError(t, svc.SignOut(ctx, second.Token))
	assert.Len(t, svc.revoked, 1, "the expired revocation is swept")
	_, ok := svc.revoked[mustClaims(t, svc, second.Token).ID]
	assert.True(t, ok)
}

func mustClaims(t *testing.T, svc *AccountService, token string) *jwt.RegisteredClaims {
	t.Helper()
	claims, err := svc.parse(token)
	require.NoError(t, err)
	return claims
}
