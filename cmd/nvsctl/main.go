// Command nvsctl inspects and edits the NVS partitions of a flash image.
//
//	nvsctl [-config nvs.yaml] [-image flash.img] [command args...]
//
// With no command it starts an interactive shell.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dd0wney/cluso-nvs/pkg/config"
	"github.com/dd0wney/cluso-nvs/pkg/flash"
	"github.com/dd0wney/cluso-nvs/pkg/logging"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (firmware layout when empty)")
	imagePath := flag.String("image", "", "Flash image file, overrides the configuration")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	if err := run(*configPath, *imagePath, *logLevel, flag.Args(), os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, imagePath, logLevel string, args []string, in io.Reader, out, errOut io.Writer) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if imagePath != "" {
		cfg.Flash.Image = imagePath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	dev, err := flash.OpenFile(cfg.Flash.Image, cfg.Geometry())
	if err != nil {
		return err
	}
	defer dev.Close()

	log := cfg.Logger(errOut)
	opts := cfg.StorageOptions()
	opts.Logger = log
	m, err := storage.Open(dev, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cli := &CLI{m: m, out: out}
	if len(args) > 0 {
		err = cli.executeCommand(args)
	} else {
		cli.repl(ctx, in)
	}

	stop()
	err = errors.Join(err, <-done, m.Close(), dev.Sync())
	if err == nil {
		log.Debug("image synced", logging.Path(cfg.Flash.Image))
	}
	return err
}

func (cli *CLI) repl(ctx context.Context, in io.Reader) {
	fmt.Fprintln(cli.out, "Type 'help' for available commands, 'exit' to quit")
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(cli.out, "nvs> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if err := cli.executeCommand(strings.Fields(input)); err != nil {
			fmt.Fprintf(cli.out, "❌ %v\n", err)
		}
	}
}
