package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:      EnvDevelopment,
		Database: DatabaseConfig{Driver: DriverPostgres},
		JWT:      JWTConfig{Secret: "s"},
		Requests: RequestsConfig{NumberPrefix: "SC", SequenceBackend: SequenceBackendPostgres},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadPrefix(t *testing.T) {
	for _, prefix := range []string{"", "S", "sc", "SCX", "S1"} {
		cfg := validConfig()
		cfg.Requests.NumberPrefix = prefix
		require.Error(t, cfg.Validate(), prefix)
	}
}

func TestValidateSequenceBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Requests.SequenceBackend = "etcd"
	require.Error(t, cfg.Validate())

	cfg.Requests.SequenceBackend = SequenceBackendRedis
	require.Error(t, cfg.Validate())

	cfg.Redis.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestValidateDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = DriverPgx
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	require.Error(t, cfg.Validate())
}

func TestValidateProductionSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Env = EnvProduction
	cfg.JWT.Secret = "dev_secret"
	require.Error(t, cfg.Validate())
}

func TestHelpers(t *testing.T) {
	require.Equal(t, 5*time.Second, parseDuration("5s", time.Minute))
	require.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	require.Equal(t, time.Minute, parseDuration("", time.Minute))
	require.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
	require.Nil(t, splitAndTrim(""))
}
