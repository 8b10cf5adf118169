package util

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/netlevel/rpc/client"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/serializer"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/ValentinKolb/netlevel/rpc/transport/tcp"
	"github.com/ValentinKolb/netlevel/rpc/transport/unix"
	"github.com/ValentinKolb/netlevel/rpc/transport/ws"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net"
	"strconv"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (NETLEVEL_PORT, ...)
	EnvPrefix = "netlevel"
)

// legacyEnv maps the environment variables of older deployments to flags
var legacyEnv = map[string]string{
	"port": "DB_PORT",
	"base": "DB_BASE",
	"user": "DB_USER",
	"pass": "DB_PASS",
	"pash": "DB_PASH",
}

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads the .env files and binds the environment to viper.
// Legacy DB_* variables are used when the NETLEVEL_* variable is unset.
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for key, env := range legacyEnv {
		_ = viper.BindEnv(key, strings.ToUpper(EnvPrefix+"_"+key), env)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// SetupClientFlags adds the connection and session flags to a command group
func SetupClientFlags(cmd *cobra.Command) {
	key := "host"
	cmd.PersistentFlags().String(key, "localhost", WrapString("Host of the netlevel server"))

	key = "port"
	cmd.PersistentFlags().Int(key, common.DefaultPort, WrapString("Port of the netlevel server"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("Socket path (unix) or URL (ws) of the server, overrides host and port"))

	key = "transport"
	cmd.PersistentFlags().String(key, "tcp", WrapString("Transport to use (tcp, unix, ws)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry connecting"))

	key = "user"
	cmd.PersistentFlags().String(key, "", WrapString("User to authenticate as"))

	key = "pass"
	cmd.PersistentFlags().String(key, "", WrapString("Password of the user"))

	key = "base"
	cmd.PersistentFlags().String(key, "", WrapString("Base to use"))

	key = "create"
	cmd.PersistentFlags().Bool(key, false, WrapString("Create the base if it does not exist"))

	key = "sub"
	cmd.PersistentFlags().String(key, "", WrapString("Sub-store path below the base, separated by '/' (e.g. users/active)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	endpoint := viper.GetString("endpoint")
	if endpoint == "" {
		endpoint = net.JoinHostPort(viper.GetString("host"), strconv.Itoa(viper.GetInt("port")))
	}
	return &common.ClientConfig{
		Endpoint:      endpoint,
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
	}
}

// GetTransport creates the client transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	case "ws":
		return ws.NewWebSocketClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// SubPath splits the --sub flag into path segments
func SubPath() []string {
	var path []string
	for _, seg := range strings.Split(viper.GetString("sub"), "/") {
		if seg != "" {
			path = append(path, seg)
		}
	}
	return path
}

// Target describes the session a client opens
type Target struct {
	Endpoint string
	User     string
	Pass     string
	Base     string
	Create   bool
	Sub      []string
}

// FlagTarget returns the session described by the connection flags
func FlagTarget() Target {
	return Target{
		Endpoint: GetClientConfig().Endpoint,
		User:     viper.GetString("user"),
		Pass:     viper.GetString("pass"),
		Base:     viper.GetString("base"),
		Create:   viper.GetBool("create"),
		Sub:      SubPath(),
	}
}

// Connect opens a client and prepares the session from the flags: auth if
// a user is set, use if a base is set, and sub if a sub path is set.
func Connect(ctx context.Context) (*client.Client, error) {
	return ConnectTo(ctx, FlagTarget())
}

// ConnectTo opens a client for target. The transport and timeouts are
// taken from the flags.
func ConnectTo(ctx context.Context, target Target) (*client.Client, error) {
	t, err := GetTransport()
	if err != nil {
		return nil, err
	}

	config := GetClientConfig()
	config.Endpoint = target.Endpoint
	c, err := client.Open(*config, t, serializer.NewJSONSerializer())
	if err != nil {
		return nil, err
	}

	if target.User != "" {
		if err := c.Auth(ctx, target.User, target.Pass); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	if target.Base != "" {
		if _, err := c.Use(ctx, target.Base, target.Create); err != nil {
			_ = c.Close()
			return nil, err
		}
		if len(target.Sub) > 0 {
			if _, err := c.Sub(ctx, target.Sub...); err != nil {
				_ = c.Close()
				return nil, err
			}
		}
	}
	return c, nil
}

// ParseTarget parses a session of the form host/port/user/pass/base. Empty
// or missing parts are taken from def.
func ParseTarget(spec string, def Target) (Target, error) {
	parts := strings.Split(spec, "/")
	if len(parts) > 5 {
		return Target{}, fmt.Errorf("invalid session %q (expected host/port/user/pass/base)", spec)
	}
	parts = append(parts, make([]string, 5-len(parts))...)

	target := def
	if parts[0] != "" || parts[1] != "" {
		host, port, err := net.SplitHostPort(def.Endpoint)
		if err != nil {
			host, port = "localhost", strconv.Itoa(common.DefaultPort)
		}
		if parts[0] != "" {
			host = parts[0]
		}
		if parts[1] != "" {
			if _, err := strconv.Atoi(parts[1]); err != nil {
				return Target{}, fmt.Errorf("invalid port %q", parts[1])
			}
			port = parts[1]
		}
		target.Endpoint = net.JoinHostPort(host, port)
	}
	if parts[2] != "" {
		target.User = parts[2]
	}
	if parts[3] != "" {
		target.Pass = parts[3]
	}
	if parts[4] != "" {
		target.Base = parts[4]
	}
	return target, nil
}
