package totp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infraops/infrabot/pkg/totp"
)

// rfcSecret is "12345678901234567890" in Base32, the RFC 6238 appendix secret.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateSecret(t *testing.T) {
	t.Parallel()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z2-7]+$`, secret)
	assert.GreaterOrEqual(t, len(secret), 32)

	other, err := totp.GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestCodeAt_RFC6238Vectors(t *testing.T) {
	t.Parallel()

	// Last six digits of the RFC 6238 appendix B SHA1 vectors.
	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tt := range tests {
		code, err := totp.CodeAt(rfcSecret, time.Unix(tt.unix, 0))
		require.NoError(t, err)
		assert.Equal(t, tt.want, code, "unix=%d", tt.unix)
	}
}

func TestVerifyAt(t *testing.T) {
	t.Parallel()

	now := time.Unix(1111111109, 0)

	t.Run("current step", func(t *testing.T) {
		t.Parallel()
		ok, err := totp.VerifyAt(rfcSecret, "081804", now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("previous step accepted", func(t *testing.T) {
		t.Parallel()
		code, err := totp.CodeAt(rfcSecret, now.Add(-totp.Period*time.Second))
		require.NoError(t, err)
		ok, err := totp.VerifyAt(rfcSecret, code, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("next step accepted", func(t *testing.T) {
		t.Parallel()
		code, err := totp.CodeAt(rfcSecret, now.Add(totp.Period*time.Second))
		require.NoError(t, err)
		ok, err := totp.VerifyAt(rfcSecret, code, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("two steps away rejected", func(t *testing.T) {
		t.Parallel()
		code, err := totp.CodeAt(rfcSecret, now.Add(2*totp.Period*time.Second))
		require.NoError(t, err)
		require.NotEqual(t, "081804", code)
		ok, err := totp.VerifyAt(rfcSecret, code, now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong code", func(t *testing.T) {
		t.Parallel()
		ok, err := totp.VerifyAt(rfcSecret, "000000", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("bad format", func(t *testing.T) {
		t.Parallel()
		_, err := totp.VerifyAt(rfcSecret, "12345", now)
		assert.ErrorIs(t, err, totp.ErrInvalidCodeFormat)

		_, err = totp.VerifyAt(rfcSecret, "abcdef", now)
		assert.ErrorIs(t, err, totp.ErrInvalidCodeFormat)
	})

	t.Run("bad secret", func(t *testing.T) {
		t.Parallel()
		_, err := totp.VerifyAt("not a secret!", "123456", now)
		assert.ErrorIs(t, err, totp.ErrInvalidSecret)
	})

	t.Run("whitespace and padding tolerated", func(t *testing.T) {
		t.Parallel()
		ok, err := totp.VerifyAt("  "+rfcSecret+"== ", " 081804 ", now)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestProvisioningURI(t *testing.T) {
	t.Parallel()

	uri, err := totp.ProvisioningURI(rfcSecret, "123456789", "InfraBot")
	require.NoError(t, err)
	assert.Equal(t,
		"otpauth://totp/InfraBot:123456789?algorithm=SHA1&digits=6&issuer=InfraBot&period=30&secret="+rfcSecret,
		uri)

	_, err = totp.ProvisioningURI(rfcSecret, "", "InfraBot")
	assert.ErrorIs(t, err, totp.ErrMissingAccountName)

	_, err = totp.ProvisioningURI(rfcSecret, "123456789", "")
	assert.ErrorIs(t, err, totp.ErrMissingIssuer)

	_, err = totp.ProvisioningURI("???", "123456789", "InfraBot")
	assert.ErrorIs(t, err, totp.ErrInvalidSecret)
}

func TestVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)

	code, err := totp.Code(secret)
	require.NoError(t, err)

	ok, err := totp.Verify(secret, code)
	require.NoError(t, err)
	assert.True(t, ok)
}
