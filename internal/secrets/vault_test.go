package secrets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithDisabledVaultNeverErrors(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, p.client)
}

func TestBlacklistFallsBackToEnv(t *testing.T) {
	t.Setenv("WARROOM_BLACKLIST", "BADCO, SCAMX ,GOODCO")
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	list, err := p.Blacklist(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"BADCO", "SCAMX", "GOODCO"}, list)
}

func TestBlacklistEmptyEnvYieldsNil(t *testing.T) {
	t.Setenv("WARROOM_BLACKLIST", "")
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	list, err := p.Blacklist(t.Context())
	require.NoError(t, err)
	require.Nil(t, list)
}

func TestBrokerCredentialsFallsBackToEnv(t *testing.T) {
	t.Setenv("WARROOM_BROKER_API_KEY", "key123")
	t.Setenv("WARROOM_BROKER_API_SECRET", "secret456")
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	creds, err := p.BrokerCredentials(t.Context())
	require.NoError(t, err)
	require.Equal(t, "key123", creds.APIKey)
	require.Equal(t, "secret456", creds.APISecret)
}
