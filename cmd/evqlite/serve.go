package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nainya/evqlite/internal/adminserver"
	"github.com/nainya/evqlite/internal/logger"
	"github.com/nainya/evqlite/pkg/config"
	"github.com/nainya/evqlite/pkg/transport/pool"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin control plane (health check and stats RPCs) for a node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}

		log := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

		p := pool.New(pool.Config{
			MaxConns:        cfg.Pool.MaxConns,
			MaxConnsPerHost: cfg.Pool.MaxConnsPerHost,
			MaxConnAge:      cfg.Pool.MaxConnAge,
			IOTimeout:       cfg.Pool.IOTimeout,
		})
		defer p.CloseAll()

		admin := adminserver.New(p, nil)

		log.LogServerStart(0, cfg.Arena.DataDir)

		lis, err := net.Listen("tcp", cfg.Server.AdminAddr)
		if err != nil {
			return fmt.Errorf("listening on admin address: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.LogServerShutdown()
			admin.GRPCServer().GracefulStop()
		}()

		log.LogServerReady(lis.Addr().(*net.TCPAddr).Port)
		return admin.GRPCServer().Serve(lis)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to a YAML config file (optional, defaults layered over)")
	rootCmd.AddCommand(serveCmd)
}
