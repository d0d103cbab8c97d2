package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/config"
	"github.com/sweeney/home-sensors/internal/logger"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	v          *viper.Viper
	log        *zap.SugaredLogger
}

// flagKeys binds persistent flags to config keys.
var flagKeys = map[string]string{
	"broker":           "broker",
	"username":         "username",
	"password":         "password",
	"client-id":        "client_id",
	"discovery-prefix": "discovery_prefix",
	"http":             "http_addr",
	"log-level":        "log_level",
	"poll":             "poll",
	"heartbeat":        "heartbeat",
	"gpio-backend":     "gpio.backend",
	"gpio-chip":        "gpio.chip",
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "home-sensors",
		Short:         "Debounced home sensor controllers reporting to Home Assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML config file")
	f.String("broker", "", "MQTT broker address, e.g. tcp://192.168.1.200:1883")
	f.String("username", "", "MQTT username")
	f.String("password", "", "MQTT password")
	f.String("client-id", "", "MQTT client id (random when empty)")
	f.String("discovery-prefix", "", "Home Assistant discovery prefix")
	f.String("http", "", `HTTP status address ("off" disables)`)
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.Duration("poll", 0, "sensor polling interval")
	f.Duration("heartbeat", 0, "heartbeat interval (0 disables)")
	f.String("gpio-backend", "", "GPIO backend: cdev or rpio")
	f.String("gpio-chip", "", "GPIO character device for the cdev backend")

	root.AddCommand(
		newGarageCmd(a),
		newDoorbellCmd(a),
		newGardenCmd(a),
		newBridgeCmd(a),
		newCalibrateCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	v, err := config.New(a.configPath)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	a.v = v

	level, ok := logger.ParseLevel(v.GetString("log_level"))
	if !ok {
		return fmt.Errorf("invalid log level %q", v.GetString("log_level"))
	}
	a.log = logger.New(level).Named("home-sensors")
	return nil
}

// load returns the validated configuration.
func (a *app) load() (*config.Config, error) {
	return config.Load(a.v)
}
