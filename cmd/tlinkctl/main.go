// Command tlinkctl is a small CLI for running TLink's end-to-end demo
// scenarios: wire up an Executor, a driver, spawn a task that drives it,
// and print what happens.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tlink-go/tlink/config"
	"github.com/tlink-go/tlink/examples/broadcast"
	"github.com/tlink-go/tlink/examples/fibonacci"
	"github.com/tlink-go/tlink/examples/loadbalancer"
	"github.com/tlink-go/tlink/logx"
	"github.com/tlink-go/tlink/rawchan"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tlinkctl: config:", err)
		os.Exit(1)
	}
	log := logx.New(os.Stderr, logx.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	defaultMode, err := rawchan.ParseMode(cfg.DefaultMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tlinkctl: config:", err)
		os.Exit(1)
	}

	if len(os.Args) < 3 || os.Args[1] != "demo" {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	switch os.Args[2] {
	case "fibonacci":
		log.Info("running fibonacci demo")
		values := fibonacci.Run(ctx, defaultMode, cfg.DefaultBufferSize)
		fmt.Println(values)
	case "broadcast":
		log.Info("running broadcast demo")
		first, second := broadcast.Run(ctx, cfg.DefaultBufferSize)
		fmt.Println("first push:", first)
		fmt.Println("second push:", second)
	case "loadbalancer":
		log.Info("running loadbalancer demo")
		deliveries := loadbalancer.Run(ctx, cfg.DefaultBufferSize)
		fmt.Println(deliveries)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tlinkctl demo {fibonacci|broadcast|loadbalancer}")
}
