package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/actor"
	"github.com/carevault/carevault/internal/platform/audit"
)

type authFixture struct {
	issuer *TokenIssuer
	repo   *actor.RepoMem
	store  *audit.RepoMem
	writer *audit.Writer
	mw     *Middleware
	actor  *actor.Actor
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	repo := actor.NewRepoMem()
	svc := actor.NewService(repo, 5, 30*time.Minute, 12)
	a, err := svc.Register(context.Background(), "dr@example.org", "Dr. Example", "correct horse battery", actor.RoleProvider, actor.TierFull)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	store := audit.NewRepoMem()
	writer := audit.NewWriter(store, zerolog.Nop(), 16, time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		writer.Close(ctx)
	})

	issuer := NewTokenIssuer(testSecret, time.Hour, 24*time.Hour)
	return &authFixture{
		issuer: issuer,
		repo:   repo,
		store:  store,
		writer: writer,
		mw:     NewMiddleware(issuer, repo, writer),
		actor:  a,
	}
}

func (f *authFixture) do(t *testing.T, token string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients/1", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/patients/1")

	handler := f.mw.Authenticate(func(c echo.Context) error {
		if ActorFromContext(c) == nil {
			t.Error("actor missing from context inside handler")
		}
		return c.NoContent(http.StatusOK)
	})
	return rec, handler(c)
}

func (f *authFixture) denials(t *testing.T) []*audit.Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.writer.Close(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	var out []*audit.Entry
	for _, e := range f.store.All() {
		if e.EventType == audit.EventAccessDenied {
			out = append(out, e)
		}
	}
	return out
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestAuthenticateValidToken(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.issuer.Issue(f.actor, TokenUseAccess)
	if err != nil {
		t.Fatal(err)
	}

	rec, handlerErr := f.do(t, token)
	if handlerErr != nil {
		t.Fatalf("handler err = %v", handlerErr)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(f.denials(t)) != 0 {
		t.Error("successful auth recorded a denial")
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.do(t, "")
	if httpStatus(t, err) != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", httpStatus(t, err))
	}

	denied := f.denials(t)
	if len(denied) != 1 {
		t.Fatalf("denial entries = %d, want 1", len(denied))
	}
	e := denied[0]
	if e.Severity != audit.SeverityHigh || e.Outcome != audit.OutcomeFailure {
		t.Errorf("denial severity=%s outcome=%s, want high/failure", e.Severity, e.Outcome)
	}
}

func TestAuthenticateRefreshTokenRejected(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.issuer.Issue(f.actor, TokenUseRefresh)
	if err != nil {
		t.Fatal(err)
	}

	_, handlerErr := f.do(t, token)
	if httpStatus(t, handlerErr) != http.StatusUnauthorized {
		t.Error("refresh token authenticated a request")
	}
}

func TestAuthenticateStaleToken(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.issuer.Issue(f.actor, TokenUseAccess)
	if err != nil {
		t.Fatal(err)
	}

	// A credential change after issuance invalidates the token.
	time.Sleep(1100 * time.Millisecond)
	if err := f.repo.SetPassword(context.Background(), f.actor.ID, "newhash", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	_, handlerErr := f.do(t, token)
	if httpStatus(t, handlerErr) != http.StatusUnauthorized {
		t.Error("stale token authenticated a request")
	}

	denied := f.denials(t)
	if len(denied) != 1 {
		t.Fatalf("denial entries = %d, want 1", len(denied))
	}
	if denied[0].ActorID == nil || *denied[0].ActorID != f.actor.ID {
		t.Error("stale-token denial should attribute the actor")
	}
}

func TestAuthenticateDeactivatedActor(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.issuer.Issue(f.actor, TokenUseAccess)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.repo.Deactivate(context.Background(), f.actor.ID); err != nil {
		t.Fatal(err)
	}

	_, handlerErr := f.do(t, token)
	if httpStatus(t, handlerErr) != http.StatusUnauthorized {
		t.Error("deactivated actor authenticated a request")
	}
}

func TestSkipperExemptsPublicPaths(t *testing.T) {
	f := newAuthFixture(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/health")

	handler := f.mw.Authenticate(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Errorf("public path rejected: %v", err)
	}
}
