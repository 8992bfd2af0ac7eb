package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fako1024/nciscale/pkg/config"
	"github.com/fako1024/nciscale/pkg/mock"
	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/session"
	"github.com/fako1024/nciscale/pkg/transport"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"
)

const historyFileName = ".nciscale_history"

var log = logrus.New()

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {

	// Parse command line options
	var (
		configPath string
		port       string
		useMock    bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&port, "port", "", "Serial port to open on startup")
	flag.BoolVar(&useMock, "mock", false, "Talk to a simulated scale instead of a serial port")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if port == "" {
		port = cfg.Serial.Port
	}

	c := &console{
		out:  os.Stdout,
		open: serialOpener(cfg),
		options: []session.Option{
			session.WithLogger(log),
			session.WithInterByteTimeout(cfg.Serial.InterByteTimeout),
		},
	}
	if cfg.Serial.ReadTimeout > 0 {
		c.options = append(c.options, session.WithReadTimeout(cfg.Serial.ReadTimeout))
	}
	if useMock || cfg.Protocol.Mock {
		c.open = mockOpener
		if port == "" {
			port = "mock"
		}
	}
	defer c.close()

	fmt.Fprint(c.out, helpText)
	if port != "" {
		c.openPort(port)
	}

	shell := liner.NewLiner()
	defer shell.Close()

	shell.SetCtrlCAborts(true)
	shell.SetCompleter(func(line string) (matches []string) {
		for _, cmd := range []string{"w", "s", "z", "u", "p ", "l", "h", "e"} {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				matches = append(matches, cmd)
			}
		}
		return
	})

	historyPath := historyFile()
	if f, err := os.Open(historyPath); err == nil {
		if _, err := shell.ReadHistory(f); err != nil {
			log.Debugf("failed to read history: %s", err)
		}
		f.Close()
	}

	for {
		input, err := shell.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			shell.AppendHistory(input)
		}
		if c.execute(context.Background(), input) {
			break
		}
	}

	if f, err := os.Create(historyPath); err == nil {
		if _, err := shell.WriteHistory(f); err != nil {
			log.Debugf("failed to write history: %s", err)
		}
		f.Close()
	}

	return nil
}

func serialOpener(cfg *config.Config) opener {
	return func(name string) (session.Transport, io.Closer, error) {
		portCfg, err := cfg.PortConfig()
		if err != nil {
			return nil, nil, err
		}
		portCfg.Port = name

		p, err := transport.Open(portCfg, transport.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	}
}

func mockOpener(string) (session.Transport, io.Closer, error) {
	m := mock.New(mock.WithWeight(1.25, nci.UnitPounds))
	return m, m, nil
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFileName
	}
	return filepath.Join(home, historyFileName)
}
