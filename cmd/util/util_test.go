package util

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"reflect"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line longer than %d: %q", Wrap, line)
		}
	}

	if got := WrapString("  short   text "); got != "short text" {
		t.Errorf("got %q", got)
	}
}

func newClientCommand(t *testing.T, args ...string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	SetupClientFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	InitConfig()
	if err := BindCommandFlags(cmd); err != nil {
		t.Fatal(err)
	}
}

func TestClientConfig(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		endpoint string
	}{
		{"defaults", nil, "localhost:8000"},
		{"host and port", []string{"--host", "db.local", "--port", "9000"}, "db.local:9000"},
		{"endpoint wins", []string{"--port", "9000", "--endpoint", "/tmp/netlevel.sock"}, "/tmp/netlevel.sock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newClientCommand(t, tt.args...)
			conf := GetClientConfig()
			if conf.Endpoint != tt.endpoint {
				t.Errorf("endpoint = %q, want %q", conf.Endpoint, tt.endpoint)
			}
			if conf.TimeoutSecond != 10 || conf.RetryCount != 3 {
				t.Errorf("unexpected defaults: %+v", conf)
			}
		})
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("DB_PORT", "9001")
	t.Setenv("DB_USER", "legacy")
	t.Setenv("NETLEVEL_USER", "admin")
	newClientCommand(t)

	if got := viper.GetInt("port"); got != 9001 {
		t.Errorf("port = %d, want the legacy DB_PORT", got)
	}
	if got := viper.GetString("user"); got != "admin" {
		t.Errorf("user = %q, NETLEVEL_USER should win over DB_USER", got)
	}
}

func TestSubPath(t *testing.T) {
	newClientCommand(t, "--sub", "/users//active/")
	path := SubPath()
	if len(path) != 2 || path[0] != "users" || path[1] != "active" {
		t.Errorf("got %v", path)
	}
}

func TestGetTransport(t *testing.T) {
	for _, name := range []string{"tcp", "unix", "ws"} {
		newClientCommand(t, "--transport", name)
		if _, err := GetTransport(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	newClientCommand(t, "--transport", "http")
	if _, err := GetTransport(); err == nil {
		t.Error("expected an error for an unknown transport")
	}
}

func TestParseTarget(t *testing.T) {
	def := Target{Endpoint: "db.local:8000", User: "admin", Pass: "secret", Base: "src"}

	tests := []struct {
		name string
		spec string
		want Target
	}{
		{"empty keeps the defaults", "", def},
		{"base only", "////copy", Target{Endpoint: "db.local:8000", User: "admin", Pass: "secret", Base: "copy"}},
		{"host keeps the port", "backup", Target{Endpoint: "backup:8000", User: "admin", Pass: "secret", Base: "src"}},
		{"full", "backup/9000/bob/pw/copy", Target{Endpoint: "backup:9000", User: "bob", Pass: "pw", Base: "copy"}},
		{"port only", "/9000", Target{Endpoint: "db.local:9000", User: "admin", Pass: "secret", Base: "src"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.spec, def)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	for _, spec := range []string{"host/port", "a/1/b/c/d/e"} {
		if _, err := ParseTarget(spec, def); err == nil {
			t.Errorf("expected an error for %q", spec)
		}
	}
}

func TestFlagTarget(t *testing.T) {
	newClientCommand(t, "--user", "admin", "--base", "db", "--create", "--sub", "a/b")
	target := FlagTarget()
	want := Target{Endpoint: "localhost:8000", User: "admin", Base: "db", Create: true, Sub: []string{"a", "b"}}
	if !reflect.DeepEqual(target, want) {
		t.Errorf("got %+v, want %+v", target, want)
	}
}
