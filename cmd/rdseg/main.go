package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/intxff/rdseg/capture"
	"github.com/intxff/rdseg/config"
	"github.com/intxff/rdseg/log"
	"github.com/intxff/rdseg/rewrite"
	"go.uber.org/zap"
)

const (
	_version = 0.1
)

var (
	path    string
	version bool
	test    bool
	input   string
	output  string
)

func init() {
	flag.StringVar(&path, "c", "./config.yaml", "path of yaml configuration file")
	flag.BoolVar(&version, "v", false, "version")
	flag.BoolVar(&test, "t", false, "test config file")
	flag.StringVar(&input, "r", "", "rewrite packets read from this pcap file instead of a tun device")
	flag.StringVar(&output, "w", "", "pcap file written in -r mode")
	flag.Parse()
}

func main() {
	if version {
		fmt.Printf("rdseg: %v\n", _version)
		return
	}

	// parse config
	rdConfig, err := config.ParseRawConfig(path)
	if err != nil {
		log.Fatal("[Config] failed to unmarshal config", zap.Error(err))
	}
	if err := log.UpdateLogger(&rdConfig.Log); err != nil {
		log.Fatal("[Log] failed to update logger", zap.Error(err))
	}
	defer log.CloseLogger()

	rw, err := rdConfig.ParseRewriter()
	if err != nil {
		log.Fatal("[Config] failed to parse rules", zap.Error(err))
	}
	if test {
		log.Info("[Config] ok", zap.String("path", rdConfig.Path))
		return
	}

	if input != "" {
		if err := runCapture(rw); err != nil {
			log.Fatal("[Capture] failed", zap.Error(err))
		}
		return
	}

	if err := runTun(rdConfig, rw); err != nil {
		log.Fatal("[Tun] failed", zap.Error(err))
	}
}

func runCapture(rw *rewrite.Rewriter) error {
	if output == "" {
		return errors.New("-r needs -w")
	}
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	if _, err := capture.Rewrite(in, out, rw); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func runTun(c *config.RdConfig, rw *rewrite.Rewriter) error {
	if c.Tun == nil {
		return errors.New("no tun section in config")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := c.Tun.Run(ctx, rw)
	s := rw.Stats()
	log.Info("[EXIT] Bye",
		zap.Uint64("packets", s.Packets),
		zap.Uint64("rewritten", s.Rewritten),
		zap.Uint64("replied", s.Replied),
		zap.Uint64("dropped", s.Dropped))
	return err
}
