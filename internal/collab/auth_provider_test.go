package collab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthProviderIssueAndVerifyRoundTrips(t *testing.T) {
	p := NewJWTAuthProvider("test-secret")
	token, err := p.Issue("user1", "driver", "driver", "9990001111", time.Hour)
	require.NoError(t, err)

	userID, userType, role, phone, err := p.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user1", userID)
	assert.Equal(t, "driver", userType)
	assert.Equal(t, "driver", role)
	assert.Equal(t, "9990001111", phone)
}

func TestJWTAuthProviderVerifyRejectsExpiredToken(t *testing.T) {
	p := NewJWTAuthProvider("test-secret")
	token, err := p.Issue("user1", "driver", "driver", "9990001111", -time.Minute)
	require.NoError(t, err)

	_, _, _, _, err = p.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTAuthProviderVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTAuthProvider("secret-a")
	verifier := NewJWTAuthProvider("secret-b")

	token, err := issuer.Issue("user1", "driver", "driver", "9990001111", time.Hour)
	require.NoError(t, err)

	_, _, _, _, err = verifier.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTAuthProviderVerifyRejectsGarbage(t *testing.T) {
	p := NewJWTAuthProvider("test-secret")
	_, _, _, _, err := p.Verify(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestInMemoryAuthProviderRegisterAndVerify(t *testing.T) {
	p := NewInMemoryAuthProvider(time.Hour)
	token, err := p.Register("user1", "customer", "customer", "9990001111")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, userType, role, phone, err := p.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user1", userID)
	assert.Equal(t, "customer", userType)
	assert.Equal(t, "customer", role)
	assert.Equal(t, "9990001111", phone)
}

func TestInMemoryAuthProviderVerifyRejectsUnknownToken(t *testing.T) {
	p := NewInMemoryAuthProvider(time.Hour)
	_, _, _, _, err := p.Verify(context.Background(), "nope")
	assert.Error(t, err)
}

func TestInMemoryAuthProviderVerifyRejectsExpiredToken(t *testing.T) {
	p := NewInMemoryAuthProvider(time.Millisecond)
	token, err := p.Register("user1", "customer", "customer", "9990001111")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, _, _, _, err = p.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestInMemoryAuthProviderSeedInstallsFixedToken(t *testing.T) {
	p := NewInMemoryAuthProvider(time.Hour)
	p.Seed("fixed-token", "admin1", "admin", "admin", "9990003333")

	userID, userType, _, _, err := p.Verify(context.Background(), "fixed-token")
	require.NoError(t, err)
	assert.Equal(t, "admin1", userID)
	assert.Equal(t, "admin", userType)
}

func TestInMemoryAuthProviderRegisterGeneratesUniqueTokens(t *testing.T) {
	p := NewInMemoryAuthProvider(time.Hour)
	a, err := p.Register("user1", "customer", "customer", "111")
	require.NoError(t, err)
	b, err := p.Register("user2", "customer", "customer", "222")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
