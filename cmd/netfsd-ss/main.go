package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "netfsd-ss",
		Usage: "run a netfsd storage server",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "port to listen on", Required: true},
			&cli.StringFlag{Name: "host", Value: "0.0.0.0", Usage: "address to bind"},
			&cli.StringFlag{Name: "ns-host", Aliases: []string{"n"}, Usage: "naming server host", Required: true},
			&cli.IntFlag{Name: "ns-port", Aliases: []string{"N"}, Usage: "naming server port", Required: true},
			&cli.StringFlag{Name: "data-dir", Aliases: []string{"d"}, Usage: "local directory to store files in", Required: true},
			&cli.StringSliceFlag{Name: "backup", Aliases: []string{"b"}, Usage: "host:port of a secondary storage server to replicate writes to (repeatable, max 10)"},
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
	log := netlog.New("netfsd-ss", ctx.Bool("debug"))

	srv, err := storage.NewServer(storage.ServerOptions{
		Hostname: ctx.String("host"),
		Port:     ctx.Int("port"),
		DataDir:  ctx.String("data-dir"),
		NSHost:   ctx.String("ns-host"),
		NSPort:   ctx.Int("ns-port"),
		Backups:  ctx.StringSlice("backup"),
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("configuring storage server: %w", err)
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
