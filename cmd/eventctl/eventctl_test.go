package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusevents/internal/credential"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEventctlWorkflow(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	dir := t.TempDir()
	dbURL := "--database-url=sqlite://" + filepath.Join(dir, "ctl.db")

	out, err := run(t, "", "migrate", dbURL)
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")

	out, err = run(t, "", "account", "create", dbURL, "--role", "admin", "--username", "root", "--password", "root-pass-1")
	require.NoError(t, err)
	assert.Contains(t, out, `created admin account "root"`)
	out, err = run(t, "", "account", "create", dbURL, "--role", "admin", "--username", "root", "--password", "root-pass-1")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	_, err = run(t, "", "account", "create", dbURL, "--role", "student", "--username", "x", "--password", "y")
	assert.ErrorContains(t, err, "--role must be staff or admin")

	out, err = run(t, "", "events", "create", dbURL, "--title", "Tech Talk", "--date", "2025-03-01", "--time", "14:00", "--capacity", "5")
	require.NoError(t, err)
	assert.Contains(t, out, `created event 1 "Tech Talk"`)

	_, err = run(t, "", "events", "create", dbURL, "--title", "Bad", "--date", "tomorrow")
	assert.Error(t, err)

	out, err = run(t, "", "events", "list", dbURL)
	require.NoError(t, err)
	assert.Contains(t, out, "Tech Talk")
	assert.Contains(t, out, "0/5")

	exportDir := filepath.Join(dir, "exports")
	out, err = run(t, "", "export", "event", "1", dbURL, "--out", exportDir)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, exportDir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "Tech_Talk_registrations_"))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\ufeffStudent Name,Student ID"))

	out, err = run(t, "", "export", "attendance", dbURL, "--out", exportDir, "--format", "excel")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), ".xlsx"))

	_, err = run(t, "", "export", "event", "42", dbURL, "--out", exportDir)
	assert.Error(t, err)
}

func TestCredentialCheck(t *testing.T) {
	signer, err := credential.NewSigner("ctl-secret")
	require.NoError(t, err)
	text, err := signer.Encode(credential.Subject{
		EventID: 3, EventTitle: "Tech Talk", EventDate: "2025-03-01", EventTime: "14:00",
		StudentID: "S1", StudentName: "Ann",
	})
	require.NoError(t, err)

	out, err := run(t, text, "credential", "check", "--secret", "ctl-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "event:           Tech Talk")
	assert.Contains(t, out, "registration id: S1_3")
	assert.Contains(t, out, "signature:       valid")

	_, err = run(t, text, "credential", "check", "--secret", "other")
	assert.ErrorIs(t, err, credential.ErrBadSignature)

	_, err = run(t, "hello", "credential", "check", "--secret", "ctl-secret")
	assert.ErrorIs(t, err, credential.ErrInvalidCredentialFormat)
}
