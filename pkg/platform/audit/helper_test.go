package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/middleware/admin"
	"openbadges/pkg/platform/middleware/request"
)

// mockEmitter is a test double for the Emitter interface.
type mockEmitter struct {
	events    []Event
	shouldErr bool
}

func (m *mockEmitter) Emit(_ context.Context, event Event) error {
	if m.shouldErr {
		return errors.New("emit failed")
	}
	m.events = append(m.events, event)
	return nil
}

// LoggerSuite covers context enrichment and attribute extraction, which
// service tests only observe indirectly.
type LoggerSuite struct {
	suite.Suite
	emitter *mockEmitter
	buf     *bytes.Buffer
	logger  *Logger
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) SetupTest() {
	s.emitter = &mockEmitter{}
	s.buf = &bytes.Buffer{}
	textLogger := slog.New(slog.NewJSONHandler(s.buf, nil))
	s.logger = NewLogger(textLogger, s.emitter)
}

func (s *LoggerSuite) TestLogEnrichesFromContext() {
	ctx := request.WithRequestID(context.Background(), "req-12345")
	ctx = context.WithValue(ctx, admin.ContextKeyAdminActorID, "ops@example.org")

	s.logger.Log(ctx, EventCredentialRevoked, "credential_id", "urn:uuid:1")

	s.Require().Len(s.emitter.events, 1)
	s.Equal("req-12345", s.emitter.events[0].RequestID)
	s.Equal("ops@example.org", s.emitter.events[0].ActorID)
	s.Contains(s.buf.String(), `"log_type":"audit"`)
	s.Contains(s.buf.String(), `"actor_id":"ops@example.org"`)
}

func (s *LoggerSuite) TestLogExtractsKnownAttributes() {
	listID := id.NewStatusListID()

	s.logger.Log(context.Background(), EventCredentialIssued,
		"credential_id", "urn:uuid:2",
		"issuer_id", id.IssuerID("https://issuer.example"),
		"status_list_id", listID,
		"bit_index", 7,
	)

	s.Require().Len(s.emitter.events, 1)
	e := s.emitter.events[0]
	s.Equal(string(EventCredentialIssued), e.Action)
	s.Equal("urn:uuid:2", e.CredentialID)
	s.Equal("https://issuer.example", e.IssuerID)
	s.Equal(listID.String(), e.StatusListID)
	s.Empty(e.RequestID)
	s.Empty(e.ActorID)
}

func (s *LoggerSuite) TestEmitFailureIsLogged() {
	s.emitter.shouldErr = true

	s.logger.Log(context.Background(), EventCredentialReinstated, "credential_id", "urn:uuid:3")

	s.Empty(s.emitter.events)
	s.Contains(s.buf.String(), "failed to emit audit event")
}

func (s *LoggerSuite) TestNilLoggerAndEmitter() {
	s.NotPanics(func() {
		var l *Logger
		l.Log(context.Background(), EventCredentialIssued)
		NewLogger(nil, nil).Log(context.Background(), EventCredentialIssued, "credential_id", "x")
	})
}
