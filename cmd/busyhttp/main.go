// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Command busyhttp serves a fixed HTTP response from a single busy-polled
// event loop over non-blocking sockets.
//
// Usage:
//
//	busyhttp [-config busyhttp.yaml] [-addr host:port] [-mode poll|blocking]
//
// SIGUSR1 dumps loop statistics; SIGINT/SIGTERM stop the server.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/busyhttp/affinity"
	"github.com/momentics/busyhttp/api"
	"github.com/momentics/busyhttp/control"
	"github.com/momentics/busyhttp/internal/eventloop"
	"github.com/momentics/busyhttp/internal/transport"
	"github.com/momentics/busyhttp/pool"
	"github.com/momentics/busyhttp/protocol"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address, overrides config")
	mode := flag.String("mode", "poll", "serving mode: poll (event loop) or blocking (one connection at a time)")
	flag.Parse()

	cfg, err := control.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	log, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// A second signal gets the default handler and ends the process.
	context.AfterFunc(ctx, stop)

	switch *mode {
	case "poll":
		err = runPoll(ctx, cfg, log)
	case "blocking":
		err = runBlocking(ctx, cfg, log)
	default:
		log.WithField("mode", *mode).Fatal("unknown mode")
	}
	if err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("shutdown complete")
}

func runPoll(ctx context.Context, cfg control.Config, log *logrus.Logger) error {
	ln, err := transport.Listen(cfg.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	stats := control.NewStats(cfg.HistorySize)
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	control.RegisterStatsProbes(probes, stats)

	loopCfg := eventloop.Config{
		BufferSize:    cfg.BufferSize,
		Response:      protocol.Response,
		AbortOnFatal:  cfg.FatalPolicy == control.FatalAbort,
		StatsInterval: cfg.StatsInterval,
	}
	loop, err := eventloop.New(ln, loopCfg,
		eventloop.WithLogger(log),
		eventloop.WithStats(stats),
		eventloop.WithPool(pool.NewBytePool(cfg.BufferSize)),
		eventloop.WithRequestHook(func(_ uint64, _ string, req []byte) { stats.Request(len(req)) }),
	)
	if err != nil {
		return err
	}
	probes.RegisterProbe("loop.conns", func() any {
		reqCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		conns, err := loop.RequestConns(reqCtx)
		if err != nil {
			return err.Error()
		}
		return conns
	})
	stopDump := notifyDump(ctx, probes, log)
	defer stopDump()

	release, err := affinity.PinCurrent(cfg.CPU)
	if err != nil {
		return err
	}
	defer release()

	log.WithFields(logrus.Fields{
		"addr":         ln.Addr(),
		"buffer_size":  cfg.BufferSize,
		"fatal_policy": cfg.FatalPolicy,
		"cpu":          cfg.CPU,
	}).Info("listening")
	return loop.Run(ctx)
}

func runBlocking(ctx context.Context, cfg control.Config, log *logrus.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	log.WithField("addr", ln.Addr().String()).Info("listening (blocking)")
	return serveBlocking(ctx, ln, cfg.BufferSize, log)
}

// serveBlocking handles one connection at a time until ctx is cancelled or
// ln fails. Cancellation closes ln and the connection in flight.
func serveBlocking(ctx context.Context, ln net.Listener, bufSize int, log *logrus.Logger) error {
	defer ln.Close()
	stopLn := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stopLn()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		entry := log.WithField("peer", conn.RemoteAddr().String())
		entry.Debug("connection accepted")

		stopConn := context.AfterFunc(ctx, func() { _ = conn.Close() })
		req, err := protocol.HandleBlocking(conn, bufSize)
		stopConn()
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case err == nil:
			if log.IsLevelEnabled(logrus.DebugLevel) {
				entry.WithField("bytes", len(req)).Debug(strings.ToValidUTF8(string(req), "\uFFFD"))
			}
		case api.IsClosed(err):
			entry.Warn("client disconnected unexpectedly")
		case errors.Is(err, api.ErrRequestTooLarge):
			entry.WithField("bytes", len(req)).Warn("request exceeded buffer without delimiter")
		default:
			entry.WithError(err).Error("connection failed")
		}
	}
}
