package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func validConfig() *Config {
	c := LoadConfig()
	c.Database.DSN = "file::memory:"
	c.Database.Driver = "sqlite"
	c.LLM.APIKey = "sk-test"
	c.CRM.SecretsKey = "k"
	return c
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	c := validConfig()
	c.Database.Driver = "mysql"
	c.OCR.Backend = "cloud-vision"
	c.Email.Provider = "smtp"
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, ErrInvalidInput)
	for _, want := range []string{"DB_DRIVER", "GOOGLE_VISION_API_KEY", "SMTP_HOST"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfigValidate_Ingest(t *testing.T) {
	c := validConfig()
	c.Ingest.Dir = "/var/inbox"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INGEST_ACCOUNT_ID")
	assert.Contains(t, err.Error(), "INGEST_DOCUMENT_TYPE")

	c.Ingest.AccountID = uuid.NewString()
	c.Ingest.DocumentTypeCode = "coi"
	require.NoError(t, c.Validate())
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_TEMPERATURE", "")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "not-a-number")
	c := LoadConfig()
	assert.InDelta(t, 0.1, c.LLM.Temperature, 1e-6)
	assert.Equal(t, 3, c.Scheduler.NotifyMaxAttempts)
	assert.Equal(t, "console", c.Email.Provider)
}

func TestValidator(t *testing.T) {
	email := "nope"
	err := NewValidator().
		Field("name", "  ", Required).
		Field("email", &email, Email).
		Field("id", "123", UUID).
		Field("kind", "b", OneOf("a")).
		Field("code", "abcdef", MaxLength(3)).
		Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	for _, f := range []string{"'name'", "'email'", "'id'", "'kind'", "'code'"} {
		assert.Contains(t, err.Error(), f)
	}
	assert.NoError(t, NewValidator().Field("email", "", Email).Field("id", uuid.NewString(), UUID).Err())
}

func TestGRPCError(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{NotFoundf("x"), codes.NotFound},
		{InvalidInputf("x"), codes.InvalidArgument},
		{Conflictf("x"), codes.FailedPrecondition},
		{errors.Join(ErrDatabase), codes.Unavailable},
		{errors.New("boom"), codes.Internal},
		{WrapError(ErrUnauthorized, "ctx"), codes.Unauthenticated},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, status.Code(GRPCError(tc.err)), tc.err.Error())
	}
	assert.NoError(t, GRPCError(nil))
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, uuid.Nil, AccountIDFromContext(ctx))
	assert.Nil(t, UserIDFromContext(ctx))

	acc, user := uuid.New(), uuid.New()
	ctx = WithUserID(WithAccountID(WithRequestID(ctx, "req-1"), acc), user)
	assert.Equal(t, acc, AccountIDFromContext(ctx))
	assert.Equal(t, user, *UserIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	assert.Same(t, l, LoggerFromContext(WithLogger(ctx, l), nil))
	assert.Same(t, slog.Default(), LoggerFromContext(ctx, nil))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
