package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fako1024/nciscale/pkg/api"
	"github.com/fako1024/nciscale/pkg/config"
	"github.com/fako1024/nciscale/pkg/metrics"
	"github.com/fako1024/nciscale/pkg/mock"
	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/nciscale"
	"github.com/fako1024/nciscale/pkg/publish"
	"github.com/fako1024/nciscale/pkg/scale"
	"github.com/sirupsen/logrus"
)

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
		listen     string
		interval   time.Duration
		useMock    bool
		useRedis   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&port, "port", "", "Serial port the scale is attached to (overrides configuration)")
	flag.StringVar(&listen, "listen", "", "Address to serve the REST API / metrics on (overrides configuration)")
	flag.DurationVar(&interval, "interval", 0, "Poll interval (overrides configuration)")
	flag.BoolVar(&useMock, "mock", false, "Poll a simulated scale instead of a serial port")
	flag.BoolVar(&useRedis, "redis", false, "Publish readings to Redis (overrides configuration)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if port != "" {
		cfg.Serial.Port = port
	}
	if listen != "" {
		cfg.API.Listen = listen
	}
	if interval > 0 {
		cfg.Poll.Interval = interval
	}
	if useMock {
		cfg.Protocol.Mock = true
	}
	if useRedis {
		cfg.Redis.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.New()
	s, err := newScale(cfg, collector)
	if err != nil {
		return fmt.Errorf("failed to initialize NCI scale: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warnf("failed to close scale: %s", err)
		}
	}()

	stateChan := make(chan scale.ConnectionStatus, 16)
	s.SetStateChangeChannel(stateChan)
	go func() {
		for st := range stateChan {
			if st.Error != nil {
				log.Warnf("state change: %s (%s)", st.State, st.Error)
				continue
			}
			log.Infof("state change: %s", st.State)
		}
	}()

	handlers := []func(scale.DataPoint){
		func(data scale.DataPoint) {
			log.WithFields(logrus.Fields{
				"weight": data.Weight,
				"unit":   data.Unit,
				"stable": data.Stable,
				"status": data.Status.String(),
			}).Info("reading")
		},
	}

	if cfg.Redis.Enabled {
		pub, err := publish.New(ctx, cfg.PublishOptions(), log)
		if err != nil {
			return err
		}
		defer pub.Close()
		handlers = append(handlers, pub.Handler(ctx))
	}

	s.SetDataHandler(func(data scale.DataPoint) {
		for _, h := range handlers {
			h(data)
		}
	})

	if cfg.API.Listen != "" {
		a := api.New(s, cfg.API.Listen, api.WithMetrics(collector.Handler()), api.WithLogger(log))
		defer func() {
			if err := a.Shutdown(); err != nil {
				log.Warnf("failed to shut down API: %s", err)
			}
		}()
		log.Infof("serving REST API on %s", cfg.API.Listen)
	}

	log.Infof("polling scale every %v", cfg.Poll.Interval)
	if err := s.Poll(ctx, cfg.Poll.Interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("got signal, terminating connection to device")

	return nil
}

func newScale(cfg *config.Config, collector *metrics.Collector) (*nciscale.Scale, error) {
	libLogger, err := scale.NewLogger(cfg.Log.EffectiveLevel(), cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	options := []func(*nciscale.Scale){
		nciscale.WithLogger(libLogger),
		nciscale.WithRetries(cfg.Protocol.Retries),
		nciscale.WithInterByteTimeout(cfg.Serial.InterByteTimeout),
		nciscale.WithMetrics(collector),
	}
	if cfg.Protocol.Mock {
		m := mock.New(mock.WithWeight(1.25, nci.UnitKilograms), mock.WithSettleTime(2*time.Second))
		return nciscale.New(append(options, nciscale.WithTransport(m))...)
	}

	portCfg, err := cfg.PortConfig()
	if err != nil {
		return nil, err
	}

	return nciscale.New(append(options, nciscale.WithPortConfig(portCfg))...)
}

func setupLogger(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.EffectiveLevel())
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		return
	}
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}
