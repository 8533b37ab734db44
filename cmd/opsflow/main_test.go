package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mylabook/opsflow/internal/config"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "seed-templates", "check", "token"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestTokenCmd_IssuesValidToken(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--name", "sam", "--env-file", filepath.Join(t.TempDir(), "none.env"), "--config", ""})
	require.NoError(t, root.Execute())

	claims, err := auth.NewTokenIssuer(config.Default().Auth.JWTSecret, 0).ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "sam", claims.User.Name)
	assert.Equal(t, "sam", claims.User.ID)
}

func TestTokenCmd_RequiresName(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--env-file", filepath.Join(t.TempDir(), "none.env"), "--config", ""})
	assert.Error(t, root.Execute())
}
