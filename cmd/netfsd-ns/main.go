package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/naming"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "netfsd-ns",
		Usage: "run the netfsd naming server",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "port to listen on", Required: true},
			&cli.StringFlag{Name: "host", Value: "0.0.0.0", Usage: "address to bind"},
			&cli.IntFlag{Name: "cache-size", Aliases: []string{"c"}, Value: 1024, Usage: "NS→SS connection pool capacity"},
			&cli.IntFlag{Name: "metrics-port", Aliases: []string{"m"}, Value: 0, Usage: "port to serve Prometheus metrics on (0 disables)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log := netlog.New("netfsd-ns", ctx.Bool("debug"))

	srv, err := naming.NewServer(naming.ServerOptions{
		Hostname: ctx.String("host"),
		Port:     ctx.Int("port"),
		PoolSize: ctx.Int("cache-size"),
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("configuring naming server: %w", err)
	}

	if mp := ctx.Int("metrics-port"); mp != 0 {
		reg := prometheus.NewRegistry()
		if err := srv.RegisterMetrics(reg); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			addr := fmt.Sprintf(":%d", mp)
			log.Info("metrics listening on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("metrics server stopped: %v", err)
			}
		}()
	}

	if err := srv.Listen(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	return srv.Stop()
}
