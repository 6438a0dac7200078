package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/model"
)

type fakeUsers struct {
	byEmail    map[string]*model.User
	created    []*model.User
	failCreate error
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return errs.ErrConflict
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	f.byEmail[u.Email] = u
	f.created = append(f.created, u)
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u, nil
}

type fakeLimiter struct {
	allowed  bool
	failures int
	blockAt  int
	resets   int
}

func (f *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return f.allowed, 0, nil
}

func (f *fakeLimiter) Success(context.Context, string, []byte) error {
	f.resets++
	return nil
}

func (f *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	f.failures++
	return f.blockAt > 0 && f.failures >= f.blockAt, 0, nil
}

func newAuth(users *fakeUsers, lim *fakeLimiter) *AuthServiceImpl {
	return NewAuthService(users, []byte("test-sign-key"), time.Hour, lim)
}

func TestRegister_Validation(t *testing.T) {
	s := newAuth(&fakeUsers{}, &fakeLimiter{allowed: true})
	ctx := context.Background()

	if _, err := s.Register(ctx, "not-an-email", "longenough"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("bad email: err=%v", err)
	}
	if _, err := s.Register(ctx, "a@b.test", "short"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("short password: err=%v", err)
	}
}

func TestRegisterLogin_RoundTrip(t *testing.T) {
	users := &fakeUsers{}
	lim := &fakeLimiter{allowed: true}
	s := newAuth(users, lim)
	ctx := context.Background()

	id, err := s.Register(ctx, "a@b.test", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	tok, u, err := s.Login(ctx, "a@b.test", "correct horse", "1.2.3.4")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.ID.String() != id {
		t.Fatalf("login user = %s, want %s", u.ID, id)
	}
	if lim.resets != 1 {
		t.Fatalf("limiter resets = %d", lim.resets)
	}

	got, err := s.ParseToken(tok.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if got.String() != id {
		t.Fatalf("token subject = %s, want %s", got, id)
	}
}

func TestLogin_WrongPasswordMasked(t *testing.T) {
	users := &fakeUsers{}
	lim := &fakeLimiter{allowed: true}
	s := newAuth(users, lim)
	ctx := context.Background()

	if _, err := s.Register(ctx, "a@b.test", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, err := s.Login(ctx, "a@b.test", "wrong password", "1.2.3.4")
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("wrong password: err=%v", err)
	}
	_, _, err = s.Login(ctx, "ghost@b.test", "whatever pw", "1.2.3.4")
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("unknown account must look identical: err=%v", err)
	}
	if lim.failures != 2 {
		t.Fatalf("failures recorded = %d", lim.failures)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	s := newAuth(&fakeUsers{}, &fakeLimiter{allowed: false})

	_, _, err := s.Login(context.Background(), "a@b.test", "pw pw pw pw", "1.2.3.4")
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("err=%v, want ErrRateLimited", err)
	}
}

func TestLogin_BlockedOnThreshold(t *testing.T) {
	users := &fakeUsers{}
	lim := &fakeLimiter{allowed: true, blockAt: 1}
	s := newAuth(users, lim)

	_, _, err := s.Login(context.Background(), "a@b.test", "whatever", "1.2.3.4")
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("err=%v, want ErrRateLimited after threshold", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	s := newAuth(&fakeUsers{}, &fakeLimiter{allowed: true})
	if _, err := s.ParseToken("not.a.jwt"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("err=%v", err)
	}
}

func TestParseToken_WrongKey(t *testing.T) {
	users := &fakeUsers{}
	lim := &fakeLimiter{allowed: true}
	issuer := newAuth(users, lim)
	ctx := context.Background()

	if _, err := issuer.Register(ctx, "a@b.test", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok, _, err := issuer.Login(ctx, "a@b.test", "correct horse", "1.2.3.4")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	verifier := NewAuthService(users, []byte("different-key"), time.Hour, lim)
	if _, err := verifier.ParseToken(tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("foreign signature accepted: err=%v", err)
	}
}
