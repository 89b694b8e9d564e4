package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitledger/internal/auth"
	"example.com/fitledger/internal/domain"
)

func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLedgerctlRoundTrip(t *testing.T) {
	t.Setenv("LEDGER_OWNERS", "")
	db := filepath.Join(t.TempDir(), "ledger.db")

	_, err := run(t, db, "--as", "owner", "user", "add", "pawel")
	require.NoError(t, err)
	_, err = run(t, db, "--as", "owner", "thresholds", "set-minutes", "10")
	require.NoError(t, err)

	out, err := run(t, db, "--as", "owner", "activity", "add", "pawel", "--minutes", "30", "--steps", "4000", "--date", "2024-05-01")
	require.NoError(t, err)
	require.Equal(t, "1\tpawel 2024-05-01 30 mins 4000 steps\n", out)

	_, err = run(t, db, "--as", "owner", "activity", "add", "pawel", "--minutes", "5", "--steps", "4000")
	require.ErrorIs(t, err, domain.ErrTooLittleMinutes)

	out, err = run(t, db, "user", "score", "pawel")
	require.NoError(t, err)
	require.Equal(t, "1\n", out)

	out, err = run(t, db, "thresholds", "show")
	require.NoError(t, err)
	require.Contains(t, out, "min_active_minutes\t10")
}

func TestLedgerctlEnforcesAdmins(t *testing.T) {
	t.Setenv("LEDGER_OWNERS", "")
	db := filepath.Join(t.TempDir(), "ledger.db")

	_, err := run(t, db, "--as", "owner", "admin", "add", "anna")
	require.NoError(t, err)

	_, err = run(t, db, "--as", "mallory", "user", "add", "pawel")
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = run(t, db, "user", "add", "pawel")
	require.ErrorContains(t, err, "--as is required")

	_, err = run(t, db, "--as", "anna", "admin", "remove", "owner")
	require.NoError(t, err)

	out, err := run(t, db, "admin", "list")
	require.NoError(t, err)
	require.Equal(t, []string{"anna"}, strings.Fields(out))

	_, err = run(t, db, "user", "score", "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerctlMintsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "ctl-secret")
	t.Setenv("JWT_ISSUER", "fitledger.ctl")

	out, err := run(t, filepath.Join(t.TempDir(), "unused.db"), "token", "owner", "--ttl", "5m")
	require.NoError(t, err)

	claims, err := auth.Parse(strings.TrimSpace(out), auth.Config{Secret: "ctl-secret", Issuer: "fitledger.ctl"})
	require.NoError(t, err)
	require.Equal(t, "owner", claims.Subject)
}
