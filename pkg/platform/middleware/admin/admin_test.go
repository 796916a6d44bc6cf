package admin

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	jwttoken "openbadges/internal/jwt_token"
)

// AdminMiddlewareSuite covers the invariant that a request without a valid,
// scoped admin token never reaches the handler.
type AdminMiddlewareSuite struct {
	suite.Suite
	tokens  *jwttoken.JWTService
	handler http.Handler
	called  bool
	actor   string
}

func TestAdminMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AdminMiddlewareSuite))
}

func (s *AdminMiddlewareSuite) SetupTest() {
	s.tokens = jwttoken.NewJWTService("admin-secret", "badges-admin", "openbadges", time.Minute)
	s.called = false
	s.actor = ""
	s.handler = RequireScope(s.tokens, jwttoken.ScopeStatusWrite, slog.New(slog.DiscardHandler))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.called = true
			s.actor = GetAdminActorID(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)
}

func (s *AdminMiddlewareSuite) serve(authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/assertions/urn:x/revoke", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *AdminMiddlewareSuite) TestScopedTokenPasses() {
	token, err := s.tokens.GenerateAdminToken("registrar", []string{jwttoken.ScopeStatusWrite})
	s.Require().NoError(err)

	w := s.serve("Bearer " + token)

	s.Equal(http.StatusOK, w.Code)
	s.True(s.called)
	s.Equal("registrar", s.actor)
}

func (s *AdminMiddlewareSuite) TestRejections() {
	s.Run("missing header", func() {
		s.SetupTest()
		w := s.serve("")
		s.Equal(http.StatusUnauthorized, w.Code)
		s.False(s.called)
	})

	s.Run("non bearer scheme", func() {
		s.SetupTest()
		w := s.serve("Basic YWRtaW46YWRtaW4=")
		s.Equal(http.StatusUnauthorized, w.Code)
		s.False(s.called)
	})

	s.Run("forged token", func() {
		s.SetupTest()
		forger := jwttoken.NewJWTService("guessed-secret", "badges-admin", "openbadges", time.Minute)
		token, err := forger.GenerateAdminToken("mallory", []string{jwttoken.ScopeStatusWrite})
		s.Require().NoError(err)

		w := s.serve("Bearer " + token)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.False(s.called)
	})

	s.Run("token without scope", func() {
		s.SetupTest()
		token, err := s.tokens.GenerateAdminToken("auditor", []string{"status:read"})
		s.Require().NoError(err)

		w := s.serve("Bearer " + token)
		s.Equal(http.StatusForbidden, w.Code)
		s.False(s.called)
	})
}

func (s *AdminMiddlewareSuite) TestGetAdminActorIDOutsideAdminRequest() {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s.Empty(GetAdminActorID(req.Context()))
}
