package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/shelfshare-auth/internal/auth"
	"github.com/redmonkez12/shelfshare-auth/internal/config"
	"github.com/redmonkez12/shelfshare-auth/internal/password"
)

func testConfig(format string) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		return &config.Config{Auth: config.AuthConfig{
			SigningSecret: []byte("authctl-test-secret-authctl-test-secret"),
			TokenTTL:      time.Hour,
			TokenFormat:   format,
		}}, nil
	}
}

func execute(t *testing.T, loadConfig func() (*config.Config, error), stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(loadConfig)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, testConfig("jwt"), "", "hash-password", "--algorithm", "bcrypt", "hunter22")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.True(t, password.NewBcryptHasher(0).Verify("hunter22", hash))
}

func TestHashPassword_FromStdin(t *testing.T) {
	out, err := execute(t, testConfig("jwt"), "from-stdin\n", "hash-password", "--algorithm", "bcrypt")
	require.NoError(t, err)
	assert.True(t, password.NewBcryptHasher(0).Verify("from-stdin", strings.TrimSpace(out)))

	_, err = execute(t, testConfig("jwt"), "", "hash-password")
	assert.Error(t, err)
}

func TestTokenIssueThenVerify(t *testing.T) {
	for _, format := range []string{"jwt", "paseto"} {
		t.Run(format, func(t *testing.T) {
			out, err := execute(t, testConfig(format), "", "token", "issue", "--subject", "user-1", "--email", "Ops@Example.com")
			require.NoError(t, err)
			token := strings.TrimSpace(out)
			require.NotEmpty(t, token)

			out, err = execute(t, testConfig(format), "", "token", "verify", token)
			require.NoError(t, err)
			assert.Contains(t, out, "subject:    user-1")
			assert.Contains(t, out, "email:      ops@example.com")
		})
	}
}

func TestTokenVerify_Rejects(t *testing.T) {
	_, err := execute(t, testConfig("jwt"), "", "token", "verify", "garbage")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrMalformedToken)
}

func TestTokenIssue_RequiresFlags(t *testing.T) {
	_, err := execute(t, testConfig("jwt"), "", "token", "issue", "--subject", "user-1")
	assert.Error(t, err)
}
