// Command camhub boots the media core: process bring-up, CLI flags, and
// config-file loading are out of the core's scope per spec.md §1, but the
// process still needs them to run. Grounded on
// LanternOps-breeze/apps/agent/cmd/breeze-agent/main.go's cobra
// rootCmd/runCmd tree and zap.NewProduction()/zap.NewDevelopment() logger
// construction.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/n0remac/camhub/internal/config"
	"github.com/n0remac/camhub/internal/hub"
	"github.com/n0remac/camhub/internal/sensorbus"
)

var (
	cfgFile string
	devMode bool
	natsURL string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "camhub",
		Short: "Multi-camera low-latency WebRTC media server",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	root.PersistentFlags().BoolVar(&devMode, "dev", false, "use a development logger")
	root.PersistentFlags().StringVar(&natsURL, "nats-url", nats.DefaultURL, "sensor bus NATS server URL")
	root.AddCommand(runCmd())
	return root
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start all configured camera hubs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func loadConfig() (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAMHUB")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("camhub")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/camhub")
	}

	cfg := config.Defaults()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger() (*zap.Logger, error) {
	if devMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var sensors sensorbus.Subscriber
	if hasSensorCamera(cfg.Cameras) {
		conn, err := nats.Connect(natsURL)
		if err != nil {
			log.Warn("sensor bus connection failed; sensor data channels disabled", zap.Error(err))
		} else {
			defer conn.Close()
			sensors = sensorbus.NewNatsSubscriber(conn)
		}
	}

	hubs := make([]*hub.Hub, 0, len(cfg.Cameras))
	for _, camCfg := range cfg.Cameras {
		h, err := hub.New(camCfg, *cfg, log, sensors)
		if err != nil {
			return fmt.Errorf("building hub for camera %q: %w", camCfg.ID, err)
		}
		if err := h.Start(ctx); err != nil {
			return fmt.Errorf("starting hub for camera %q: %w", camCfg.ID, err)
		}
		hubs = append(hubs, h)
	}

	log.Info("camhub running", zap.Int("camera_count", len(hubs)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx := context.Background()
	for _, h := range hubs {
		h.Stop(shutdownCtx)
	}
	return nil
}

func hasSensorCamera(cams []config.CameraConfig) bool {
	for _, c := range cams {
		if c.Sensors.Enabled {
			return true
		}
	}
	return false
}
