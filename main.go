package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatd/config"
	"chatd/db"
	"chatd/logger"
	"chatd/metrics"
	"chatd/server"
)

func main() {
	cfg, err := config.Load(context.Background())
	if err != nil {
		l := logger.Get()
		l.Fatal().Err(err).Msg("load configuration")
	}
	logger.Init(logger.Options{Level: cfg.LogLevel})
	log := logger.Get()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	defer database.Close()

	srv := server.New(cfg, database)

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint up")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	if cfg.ControlSocket != "" {
		go runControlSocket(cfg.ControlSocket, srv)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("signal received, shutting down")
		srv.Shutdown()
	}()

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// runControlSocket answers stats and shutdown commands on a local unix
// socket, one command per connection.
func runControlSocket(path string, srv *server.Server) {
	log := logger.Get()
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("control socket failed")
		return
	}
	defer os.Remove(path)
	log.Info().Str("path", path).Msg("control socket up")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer conn.Close()
			buf := make([]byte, 64)
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			switch strings.TrimSpace(string(buf[:n])) {
			case "stats":
				conn.Write([]byte(srv.GetStats() + "\n"))
			case "shutdown":
				conn.Write([]byte("shutting down\n"))
				srv.Shutdown()
			default:
				conn.Write([]byte("unknown command\n"))
			}
		}(conn)
	}
}
