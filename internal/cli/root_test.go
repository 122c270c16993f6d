package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	cmd := getRootCmd()
	require.Equal(t, "compoundlab", cmd.Use)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "create-admin"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestRootCmdVersion(t *testing.T) {
	cmd := getRootCmd()
	cmd.Version = "v1.2.3"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "v1.2.3")
}

func TestBadConfigFileFailsBeforeRunning(t *testing.T) {
	cmd := getRootCmd()
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	t.Setenv("LOG_MODE", "test")
}

func TestMigrateCmd(t *testing.T) {
	sqliteEnv(t)
	cmd := getRootCmd()
	cmd.SetArgs([]string{"migrate"})
	assert.NoError(t, cmd.Execute())
}

func TestCreateAdminCmd(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("ADMIN_PASSWORD", "admin-password")

	cmd := getRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"create-admin", "--email", "admin@example.com"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "admin ready: admin@example.com")
}

func TestCreateAdminRequiresEmail(t *testing.T) {
	sqliteEnv(t)
	cmd := getRootCmd()
	cmd.SetArgs([]string{"create-admin"})
	assert.Error(t, cmd.Execute())
}
