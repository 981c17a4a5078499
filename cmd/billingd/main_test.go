package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	billingapp "github.com/tbeaudouin05/billing-reconciler/api/services/billing/app"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSign(t *testing.T) {
	payload := `{"event":"subscription.activated"}`
	want := billingapp.NewSignatureVerifier("whsec").Sign([]byte(payload))

	out, err := run(t, payload, "sign", "--secret", "whsec")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	out, err = run(t, "", "sign", "--secret", "whsec", path)
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)
}

func TestMigrateLifecycle(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "billing.db")

	out, err := run(t, "", "migrate", "status", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "no migrations applied")

	out, err = run(t, "", "migrate", "up", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	out, err = run(t, "", "migrate", "up", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "no change")

	out, err = run(t, "", "migrate", "status", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "version 1 (dirty=false)")

	out, err = run(t, "", "migrate", "down", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back")
}

func TestMigrateDownRefusesProduction(t *testing.T) {
	_, err := run(t, "", "migrate", "down", "--database-url", "postgres://app@billing-prod.internal/billing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing")
}
