package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"storefront/menusync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"watch", "retrieve", "product", "tail"}, names)
}

func TestParseProductArg(t *testing.T) {
	key, err := parseProductArg("item/burger-01")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductKey{Kind: domain.KindItem, ID: "burger-01"}, key)

	for _, bad := range []string{"burger-01", "ITEM/", "DRINK/cola-01"} {
		_, err := parseProductArg(bad)
		assert.Error(t, err, bad)
	}
}

func TestRootCommand_RejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("menu:\n  partner: acme\n"), 0o600))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "--log-level", "loud", "product", "ITEM/burger-01"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "invalid log level")
}

func TestRootCommand_RequiresScope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("menu:\n  partner: acme\n"), 0o600))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "retrieve"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "partner and location must be set")
}
