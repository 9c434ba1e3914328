package cmd

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"chat-realtime/internal/client"
	"chat-realtime/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	serverURLKey = "server_url"
	tokenKey     = "token"
	userIDKey    = "user_id"
	logLevelKey  = "log_level"
	refreshKey   = "refresh_interval"
)

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Command line client for the realtime chat server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatctl.yaml)")
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Base URL of the chat server")
	rootCmd.PersistentFlags().String("token", "", "Bearer token returned by login")
	rootCmd.PersistentFlags().Int("user-id", 0, "User id the token was issued for")
	rootCmd.PersistentFlags().String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().Duration("refresh", time.Minute, "Interval of the REST room list refresh, 0 disables it")

	viper.BindPFlag(serverURLKey, rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag(tokenKey, rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag(userIDKey, rootCmd.PersistentFlags().Lookup("user-id"))
	viper.BindPFlag(logLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag(refreshKey, rootCmd.PersistentFlags().Lookup("refresh"))
	viper.SetDefault(serverURLKey, "http://localhost:8080")
	viper.SetDefault(logLevelKey, "WARN")
}

// initConfig reads in config file and CHATCTL_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".chatctl")
	}

	viper.SetEnvPrefix("chatctl")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}
}

func newLogger() *slog.Logger {
	return logger.New(viper.GetString(logLevelKey))
}

func newREST() *client.REST {
	return client.NewREST(viper.GetString(serverURLKey), viper.GetString(tokenKey))
}

// wsURL turns the HTTP base URL into the socket endpoint.
func wsURL() (string, error) {
	u, err := url.Parse(viper.GetString(serverURLKey))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func newCoordinator() (*client.Coordinator, error) {
	if viper.GetString(tokenKey) == "" || viper.GetInt(userIDKey) == 0 {
		return nil, fmt.Errorf("--token and --user-id are required, run chatctl login first")
	}
	target, err := wsURL()
	if err != nil {
		return nil, err
	}
	return client.NewCoordinator(client.Options{
		URL:             target,
		Token:           viper.GetString(tokenKey),
		UserID:          viper.GetInt(userIDKey),
		Rooms:           newREST(),
		RefreshInterval: viper.GetDuration(refreshKey),
		Log:             newLogger(),
	}), nil
}
