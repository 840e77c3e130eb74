package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/99designs/keyring"

	"github.com/joncooperworks/xmlharness/resolve"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var out, errOut bytes.Buffer
	cmd := newRootCommand(strings.NewReader(""), &out, &errOut, openKeyring)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUnrecognizedArgument(t *testing.T) {
	out, err := execute(t, "-verbose")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != exitUsage {
		t.Fatalf("Execute() error = %v, want exit %d", err, exitUsage)
	}
	if !strings.Contains(out, "Unrecognized argument: -verbose") {
		t.Errorf("output = %q", out)
	}
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "-?")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "-test:<name|all>") {
		t.Errorf("output = %q, want usage", out)
	}
}

func TestMissingSamplesDirectory(t *testing.T) {
	out, err := execute(t, "-dir:"+filepath.Join(t.TempDir(), "absent"), "-ask:no")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != exitConfig {
		t.Fatalf("Execute() error = %v, want exit %d", err, exitConfig)
	}
	if strings.Contains(out, "=====") {
		t.Errorf("a scenario ran despite the configuration error:\n%s", out)
	}
}

func TestRunSingleScenario(t *testing.T) {
	out, err := execute(t, "-test:ExpressionVariables", "-dir:"+filepath.Join("..", "..", "samples"), "-ask:no")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"===== ExpressionVariables =====", "a + b = 5", "==== done! ===="} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestList(t *testing.T) {
	out, err := execute(t, "list")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out, "DocumentNavigation") || !strings.Contains(out, "SchemaAwareExpression") {
		t.Errorf("output = %q", out)
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	creds := resolve.NewKeyringCredentialsFrom(keyring.NewArrayKeyring(nil))
	open := func() (credentialStore, error) { return creds, nil }

	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader("s3cret\n"), &out, &bytes.Buffer{}, open)
	cmd.SetArgs([]string{"credentials", "set", "data.example.com", "reader"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute(set) error = %v", err)
	}
	user, password, ok, err := creds.Credentials("data.example.com")
	if err != nil || !ok || user != "reader" || password != "s3cret" {
		t.Errorf("Credentials() = %q, %q, %v, %v", user, password, ok, err)
	}

	out.Reset()
	cmd = newRootCommand(strings.NewReader(""), &out, &bytes.Buffer{}, open)
	cmd.SetArgs([]string{"credentials", "list"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute(list) error = %v", err)
	}
	if out.String() != "data.example.com\n" {
		t.Errorf("list output = %q", out.String())
	}
}
