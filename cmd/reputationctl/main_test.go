package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/auth"
	"github.com/rasyiqi-code/breaktool-sub003/internal/config"
	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/obs"
	"github.com/rasyiqi-code/breaktool-sub003/internal/store/memory"
)

func memoryOpener(s *memory.Store) opener {
	return func(config.Config) (backend, func() error, error) {
		return s, nil, nil
	}
}

func run(t *testing.T, s *memory.Store, args ...string) (string, error) {
	t.Helper()
	prev := obs.Logger()
	t.Cleanup(func() { obs.SetLogger(prev) })

	var out bytes.Buffer
	root := newRootCmd(memoryOpener(s))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	obs.SetLogger(obs.NewJSONLogger(io.Discard, slog.LevelError))
	return out.String(), err
}

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd(memoryOpener(memory.New()))
	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"recalc", "users", "token", "badges"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestUsersEnsureThenRecalc(t *testing.T) {
	s := memory.New()

	out, err := run(t, s, "users", "ensure", "u1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	var u domain.User
	if err := json.Unmarshal([]byte(out), &u); err != nil {
		t.Fatalf("decode user: %v\n%s", err, out)
	}
	if u.ID != "u1" || u.PrimaryRole != domain.RoleUser {
		t.Fatalf("unexpected user %+v", u)
	}
	if len(u.Badges) == 0 || u.Badges[0] != "new_member" {
		t.Fatalf("expected new_member badge, got %v", u.Badges)
	}

	out, err = run(t, s, "recalc", "user", "u1")
	if err != nil {
		t.Fatalf("recalc user: %v", err)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res["trust_score"] != float64(0) {
		t.Fatalf("trust_score=%v, want 0", res["trust_score"])
	}

	if _, err := run(t, s, "recalc", "user", "ghost"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestRecalcTools(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	for _, id := range []string{"t1", "t2"} {
		if err := s.PutTool(ctx, domain.Tool{ID: id, Name: id}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := run(t, s, "recalc", "tools")
	if err != nil {
		t.Fatalf("recalc tools: %v", err)
	}
	if !strings.HasPrefix(out, "recomputed 2 verdicts") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, s, "recalc", "tool", "t1")
	if err != nil {
		t.Fatalf("recalc tool: %v", err)
	}
	if !strings.Contains(out, `"verdict": "try"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTokenIsVerifiable(t *testing.T) {
	t.Setenv("BREAKTOOL_AUTH_SECRET", "cli-secret")

	out, err := run(t, memory.New(), "token", "admin-1", "--role", "admin", "--role", "user", "--ttl", "5m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	issuer, err := auth.NewIssuer("cli-secret")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := issuer.ParseAndValidate(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "admin-1" {
		t.Fatalf("subject=%q", claims.Subject)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 5*time.Minute {
		t.Fatalf("ttl=%s", got)
	}
	if !auth.PrincipalFromClaims(claims).IsPrivileged() {
		t.Fatal("expected privileged principal")
	}
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	t.Setenv("BREAKTOOL_AUTH_SECRET", "cli-secret")
	if _, err := run(t, memory.New(), "token", "u1", "--role", "owner"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("BREAKTOOL_AUTH_SECRET", "")
	if _, err := run(t, memory.New(), "token", "u1"); err == nil {
		t.Fatal("expected error without secret")
	}
}
