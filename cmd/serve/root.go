package serve

import (
	"fmt"
	cmdUtil "github.com/ValentinKolb/netlevel/cmd/util"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/serializer"
	"github.com/ValentinKolb/netlevel/rpc/server"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/ValentinKolb/netlevel/rpc/transport/tcp"
	"github.com/ValentinKolb/netlevel/rpc/transport/unix"
	"github.com/ValentinKolb/netlevel/rpc/transport/ws"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the netlevel server",
		Long: `Start the netlevel server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is NETLEVEL_<flag> (e.g. NETLEVEL_LOG_LEVEL=debug).
The variables DB_PORT, DB_BASE, DB_USER, DB_PASS and DB_PASH are read as well.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "host"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0", cmdUtil.WrapString("Host the tcp listener binds to"))

	key = "port"
	ServeCmd.PersistentFlags().Int(key, common.DefaultPort, cmdUtil.WrapString("Port of the tcp listener"))

	key = "transport"
	ServeCmd.PersistentFlags().String(key, "tcp", cmdUtil.WrapString("Transport of the line protocol (tcp, unix)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Socket path of the unix listener (e.g. /tmp/netlevel.sock). For tcp it overrides host and port"))

	key = "dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Data directory holding the bases, users and base metadata"))

	key = "user"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Seed user, created or reset with all permissions on startup"))

	key = "pass"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Password of the seed user"))

	key = "pash"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Password hash of the seed user (bcrypt, or legacy sha512 hex), used instead of --pass"))

	key = "debug"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Log every request and reply (forces the debug log level)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 30, cmdUtil.WrapString("Write timeout in seconds for replies to a client"))

	key = "ws-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the WebSocket bridge (e.g. :8001), which also serves /metrics. Empty disables the bridge"))

	key = "ws-path"
	ServeCmd.PersistentFlags().String(key, common.DefaultWebSocketPath, cmdUtil.WrapString("Path of the WebSocket bridge"))

	key = "allow-self-perm-change"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Allow users with the user permission to change their own permissions"))

	key = "max-line"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxLineBytes, cmdUtil.WrapString("Maximum size of a request line in bytes"))

	key = "no-sync"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Skip fsync on writes (faster, may lose the last writes on a crash)"))

	key = "hash-cost"
	ServeCmd.PersistentFlags().Int(key, bcrypt.DefaultCost, cmdUtil.WrapString("bcrypt cost of new password hashes"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Host = viper.GetString("host")
	serveCmdConfig.Port = viper.GetInt("port")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.DataDir = viper.GetString("dir")
	serveCmdConfig.SeedUser = viper.GetString("user")
	serveCmdConfig.SeedPass = viper.GetString("pass")
	serveCmdConfig.SeedPassHash = viper.GetString("pash")
	serveCmdConfig.Debug = viper.GetBool("debug")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.WebSocketEndpoint = viper.GetString("ws-endpoint")
	serveCmdConfig.WebSocketPath = viper.GetString("ws-path")
	serveCmdConfig.AllowSelfPermissionChange = viper.GetBool("allow-self-perm-change")
	serveCmdConfig.MaxLineBytes = viper.GetInt("max-line")
	serveCmdConfig.NoSync = viper.GetBool("no-sync")
	serveCmdConfig.HashCost = viper.GetInt("hash-cost")

	switch serveCmdConfig.Transport {
	case "tcp":
	case "unix":
		if serveCmdConfig.Endpoint == "" {
			return fmt.Errorf("the unix transport requires --endpoint")
		}
	default:
		return fmt.Errorf("invalid transport %s (expected tcp or unix)", serveCmdConfig.Transport)
	}

	if serveCmdConfig.SeedPass != "" && serveCmdConfig.SeedPassHash != "" {
		return fmt.Errorf("--pass and --pash are mutually exclusive")
	}
	if serveCmdConfig.SeedUser == "" && (serveCmdConfig.SeedPass != "" || serveCmdConfig.SeedPassHash != "") {
		return fmt.Errorf("a seed password requires --user")
	}

	return common.InitLoggers(*serveCmdConfig)
}

// run starts the netlevel server and blocks until it is halted
func run(_ *cobra.Command, _ []string) error {
	transports := []transport.IRPCServerTransport{}
	switch serveCmdConfig.Transport {
	case "tcp":
		transports = append(transports, tcp.NewTCPServerTransport())
	case "unix":
		transports = append(transports, unix.NewUnixServerTransport())
	}
	if serveCmdConfig.WebSocketEndpoint != "" {
		transports = append(transports, ws.NewWebSocketServerTransport())
	}

	serv, err := server.NewRPCServer(
		*serveCmdConfig,
		serializer.NewJSONSerializer(),
		transports...,
	)
	if err != nil {
		return err
	}

	return serv.Serve()
}
