package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/officialmortgage/livbridge/internal/profile"
	"github.com/officialmortgage/livbridge/server"
	"github.com/officialmortgage/livbridge/store"
	"github.com/officialmortgage/livbridge/store/db"
)

const version = "0.3.0"

var (
	rootCmd = &cobra.Command{
		Use:   "livbridge",
		Short: `Liv, the Official Mortgage voice and SMS assistant, bridged to Twilio.`,
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := &profile.Profile{
				Mode:        viper.GetString("mode"),
				Addr:        viper.GetString("addr"),
				Port:        viper.GetInt("port"),
				Data:        viper.GetString("data"),
				Driver:      viper.GetString("driver"),
				DSN:         viper.GetString("dsn"),
				InstanceURL: viper.GetString("instance-url"),
				BrainDir:    viper.GetString("brain-dir"),
				Version:     version,
			}
			instanceProfile.FromEnv()
			if err := instanceProfile.Validate(); err != nil {
				slog.Error("invalid configuration", "error", err)
				os.Exit(1)
			}

			// Trigger graceful shutdown on SIGINT or SIGTERM.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				slog.Error("failed to create db driver", "error", err)
				return
			}
			storeInstance := store.New(dbDriver, instanceProfile)
			defer func() { _ = storeInstance.Close() }()
			if err := storeInstance.Migrate(ctx); err != nil {
				slog.Error("failed to migrate", "error", err)
				return
			}

			components, err := newComponents(instanceProfile, storeInstance)
			if err != nil {
				slog.Error("failed to initialize components", "error", err)
				return
			}
			s, err := server.NewServer(instanceProfile, components)
			if err != nil {
				slog.Error("failed to create server", "error", err)
				return
			}

			printGreetings(instanceProfile)
			if err := s.Start(ctx); err != nil {
				slog.Error("server stopped with error", "error", err)
			}
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)
	viper.SetDefault("brain-dir", "brain")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver, can be \"sqlite\" or \"postgres\"")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the public url Twilio reaches this instance on")
	rootCmd.PersistentFlags().String("brain-dir", "brain", "directory of the persona modules and liv-config.yaml")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "instance-url", "brain-dir"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("liv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func printGreetings(profile *profile.Profile) {
	if profile.IsDev() {
		println("Development mode is enabled")
		println("DSN: ", profile.DSN)
	}
	fmt.Printf(`---
Server profile
version: %s
data: %s
addr: %s
port: %d
mode: %s
driver: %s
brain: %s
---
`, profile.Version, profile.Data, profile.Addr, profile.Port, profile.Mode, profile.Driver, profile.BrainDir)

	if profile.InstanceURL != "" {
		fmt.Printf("Point your Twilio number's voice webhook at %s/voice and its messaging webhook at %s/sms\n", profile.InstanceURL, profile.InstanceURL)
	} else {
		fmt.Printf("Liv is listening on port %d\n", profile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
