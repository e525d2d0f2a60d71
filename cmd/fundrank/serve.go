package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/quantfold/fundrank/internal/config"
	"github.com/quantfold/fundrank/internal/httpapi"
	"github.com/quantfold/fundrank/internal/metrics"
	"github.com/quantfold/fundrank/internal/provider"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health and metrics endpoints",
	Long: `Expose /health (account pool state) and /metrics (prometheus)
for monitoring scheduled batch runs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	addr := cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if addr == "" {
		addr = ":9464"
	}

	pool := provider.NewPool(cfg.Pool, cfg.Accounts, log)
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	return httpapi.New(pool, reg, log).ListenAndServe(addr)
}
