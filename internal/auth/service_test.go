package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/egfr-calculator/internal/docstore"
	"github.com/iliyamo/egfr-calculator/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestService() *Service {
	store := docstore.NewMemory()
	return NewService(
		repository.NewUserRepo(store),
		repository.NewSessionRepo(store),
		Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost},
		zerolog.Nop(),
	)
}

// recorder collects identity notifications.
type recorder struct {
	mu  sync.Mutex
	got []*CurrentUser
}

func (r *recorder) IdentityChanged(u *CurrentUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, u)
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var ae *Error
	require.True(t, errors.As(err, &ae), "want *auth.Error, got %v", err)
	return ae.Code
}

func TestSignUpSignIn(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	up, err := s.SignUp(ctx, " Doc@Clinic.org ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "doc@clinic.org", up.User.Email)
	assert.NotEmpty(t, up.AccessToken)
	assert.NotEmpty(t, up.RefreshToken)

	in, err := s.SignIn(ctx, "doc@clinic.org", "secret1")
	require.NoError(t, err)
	assert.Equal(t, up.User, in.User)

	who, err := s.Authenticate(in.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, up.User, who)
}

func TestSignUp_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	_, err := s.SignUp(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name, email, password, code string
		status                      int
	}{
		{"duplicate", "A@B.co", "secret1", CodeEmailInUse, 409},
		{"bad email", "not-an-email", "secret1", CodeInvalidEmail, 400},
		{"no domain dot", "x@localhost", "secret1", CodeInvalidEmail, 400},
		{"short password", "c@d.co", "12345", CodeWeakPassword, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SignUp(ctx, tt.email, tt.password)
			assert.Equal(t, tt.code, codeOf(t, err))
			var ae *Error
			errors.As(err, &ae)
			assert.Equal(t, tt.status, ae.Status())
			assert.NotEmpty(t, ae.Message)
		})
	}
}

func TestSignIn_InvalidCredential(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	_, err := s.SignUp(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	_, err = s.SignIn(ctx, "a@b.co", "wrong-pw")
	assert.Equal(t, CodeInvalidCredential, codeOf(t, err))
	_, err = s.SignIn(ctx, "nobody@b.co", "secret1")
	assert.Equal(t, CodeInvalidCredential, codeOf(t, err))
	_, err = s.SignIn(ctx, "", "")
	assert.Equal(t, CodeInvalidCredential, codeOf(t, err))
}

func TestRefreshRotatesToken(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	first, err := s.SignUp(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	second, err := s.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.User, second.User)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = s.Refresh(ctx, first.RefreshToken)
	assert.Equal(t, CodeInvalidRefresh, codeOf(t, err))
	_, err = s.Refresh(ctx, "garbage")
	assert.Equal(t, CodeInvalidRefresh, codeOf(t, err))
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	first, err := s.SignUp(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions []Session
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := s.Refresh(ctx, first.RefreshToken)
			if err != nil {
				var ae *Error
				if assert.True(t, errors.As(err, &ae)) {
					assert.Equal(t, CodeInvalidRefresh, ae.Code)
				}
				return
			}
			mu.Lock()
			sessions = append(sessions, next)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, sessions, 1)
	_, err = s.Refresh(ctx, sessions[0].RefreshToken)
	assert.NoError(t, err)
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	a, err := s.SignUp(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	b, err := s.SignIn(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	require.NoError(t, s.SignOut(ctx, a.User, a.RefreshToken))
	_, err = s.Refresh(ctx, a.RefreshToken)
	assert.Error(t, err)
	_, err = s.Refresh(ctx, b.RefreshToken)
	require.NoError(t, err, "other sessions survive a single sign-out")

	c, err := s.SignIn(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	require.NoError(t, s.SignOut(ctx, a.User, ""))
	_, err = s.Refresh(ctx, c.RefreshToken)
	assert.Error(t, err)
}

func TestAuthenticate_Rejects(t *testing.T) {
	s := newTestService()
	_, err := s.Authenticate("nope")
	assert.Equal(t, CodeInvalidToken, codeOf(t, err))
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec)

	up, err := s.SignUp(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@b.co", "wrong-pw")
	require.Error(t, err)
	require.NoError(t, s.SignOut(ctx, up.User, up.RefreshToken))

	unsubscribe()
	unsubscribe()
	_, err = s.SignIn(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.got, 2)
	require.NotNil(t, rec.got[0])
	assert.Equal(t, up.User, *rec.got[0])
	assert.Nil(t, rec.got[1])
}

func TestSubscribe_ListenerMayUnsubscribeItself(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	calls := 0
	var unsubscribe func()
	unsubscribe = s.Subscribe(ListenerFunc(func(*CurrentUser) {
		calls++
		unsubscribe()
	}))

	_, err := s.SignUp(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
