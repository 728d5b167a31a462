package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/tcpros/internal/admin"
	"github.com/danmuck/tcpros/internal/config"
	"github.com/danmuck/tcpros/internal/directory"
	"github.com/danmuck/tcpros/internal/node"
	"github.com/danmuck/tcpros/internal/observability"
	"github.com/danmuck/tcpros/internal/protocol/msg/stdmsgs"
	"github.com/danmuck/tcpros/internal/subscriber"
	"github.com/rs/zerolog/log"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: tcprosctl [-config path] talk|listen\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "cmd/tcprosctl/config.toml", "node config path")
	flag.Usage = usage
	flag.Parse()
	mode := flag.Arg(0)
	if mode != "talk" && mode != "listen" {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadNodeConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcprosctl: %v\n", err)
		os.Exit(1)
	}
	run, err := loadRunConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcprosctl: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.CallerID)
	log.Info().Str("path", *configPath).Str("mode", mode).Msg("loaded node config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runNode(ctx, cfg, run, mode); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("tcprosctl stopped")
		os.Exit(1)
	}
}

func runNode(ctx context.Context, cfg config.NodeConfig, run runConfig, mode string) error {
	dir := directory.NewStatic()
	if cfg.DirectoryFile != "" {
		loaded, err := directory.LoadFile(cfg.DirectoryFile)
		if err != nil {
			return err
		}
		dir = loaded
	}
	defer dir.Close()

	n, err := node.New(cfg, dir)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return err
	}
	defer n.Close()

	if cfg.AdminAddr != "" {
		srv := admin.New(cfg.CallerID, cfg.AdminAddr, cfg.CorsOrigins, n)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("admin server stopped")
			}
		}()
	}

	switch mode {
	case "talk":
		return talk(ctx, n, run.Talk)
	default:
		if run.Listen.Accept != "" {
			return acceptPushes(ctx, n, run.Listen)
		}
		return listen(ctx, n, run.Listen)
	}
}

func talk(ctx context.Context, n *node.Node, cfg talkConfig) error {
	stream, err := node.Advertise(ctx, n, cfg.Topic, stdmsgs.StringCodec, cfg.Latching)
	if err != nil {
		return err
	}
	for _, addr := range cfg.Push {
		if err := stream.AddPeer(ctx, addr); err != nil {
			log.Warn().Str("peer", addr).Err(err).Msg("push peer unavailable")
		}
	}

	ticker := time.NewTicker(cfg.Rate)
	defer ticker.Stop()
	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		data := fmt.Sprintf("%s %d", cfg.Message, seq)
		delivered, err := stream.Publish(stdmsgs.String{Data: data})
		if err != nil {
			return err
		}
		log.Info().Str("topic", cfg.Topic).Str("data", data).Int("delivered", delivered).Msg("published")
	}
}

func listen(ctx context.Context, n *node.Node, cfg listenConfig) error {
	sub, err := node.Subscribe(ctx, n, cfg.Topic, stdmsgs.StringCodec)
	if err != nil {
		return err
	}
	defer sub.Close()
	for received := 0; cfg.Count == 0 || received < cfg.Count; received++ {
		v, err := sub.Recv(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("topic", cfg.Topic).Str("data", v.Data).Msg("received")
	}
	return nil
}

// acceptPushes waits for publishers that dial this process directly.
func acceptPushes(ctx context.Context, n *node.Node, cfg listenConfig) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Accept)
	if err != nil {
		return err
	}
	stopListen := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stopListen()
	log.Info().Str("addr", ln.Addr().String()).Msg("waiting for pushing publishers")

	opts := subscriber.Options{CallerID: n.CallerID, Topic: cfg.Topic, Session: n.Session}
	values := make(chan stdmsgs.String, n.Session.QueueSize)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				sub, err := subscriber.Attach(ctx, conn, stdmsgs.StringCodec, opts)
				if err != nil {
					log.Warn().Err(err).Msg("push handshake failed")
					return
				}
				defer sub.Close()
				for v := range sub.All() {
					select {
					case values <- v:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}()

	for received := 0; cfg.Count == 0 || received < cfg.Count; received++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-values:
			log.Info().Str("topic", cfg.Topic).Str("data", v.Data).Msg("received")
		}
	}
	return nil
}
