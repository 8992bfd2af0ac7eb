package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/fako1024/nciscale/pkg/config"
	"github.com/fako1024/nciscale/pkg/mock"
	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/nciscale"
	"github.com/fako1024/nciscale/pkg/scale"
	"github.com/fako1024/nciscale/pkg/transport"
	"github.com/sirupsen/logrus"
)

type options struct {
	configPath string
	port       string
	useMock    bool
	debug      bool
	timeout    time.Duration

	weight    bool
	status    bool
	zero      bool
	units     bool
	listPorts bool
}

var log = logrus.New()

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {

	// Parse command line options
	var (
		opts options
		s    scale.Scale
	)

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&opts.port, "port", "", "Serial port the scale is attached to (overrides configuration)")
	flag.BoolVar(&opts.useMock, "mock", false, "Talk to a simulated scale instead of a serial port")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Overall timeout for all requests")

	flag.BoolVar(&opts.weight, "w", false, "Request a weight reading")
	flag.BoolVar(&opts.status, "s", false, "Request the scale status")
	flag.BoolVar(&opts.zero, "z", false, "Zero the scale")
	flag.BoolVar(&opts.units, "u", false, "Toggle the unit of measure")
	flag.BoolVar(&opts.listPorts, "list", false, "List available serial ports and exit")
	flag.Parse()

	if opts.listPorts {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	cfg := config.Default()
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	if opts.port != "" {
		cfg.Serial.Port = opts.port
	}
	if opts.useMock {
		cfg.Protocol.Mock = true
	}
	if opts.debug {
		cfg.Log.Debug = true
		log.SetLevel(logrus.DebugLevel)
	}
	if err = cfg.Validate(); err != nil {
		return err
	}

	s, err = newScale(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize NCI scale: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	// Default to a weight reading if no request was specified
	if !opts.status && !opts.zero && !opts.units {
		opts.weight = true
	}

	if opts.zero {
		st, err := s.Zero(ctx)
		if err != nil {
			return fmt.Errorf("failed to zero scale: %w", err)
		}
		log.Infof("zeroed scale, status: %s", describeStatus(st))
	}
	if opts.units {
		unit, err := s.ChangeUnits(ctx)
		if err != nil {
			return fmt.Errorf("failed to change units: %w", err)
		}
		log.Infof("unit of measure changed to %s", unit)
	}
	if opts.status {
		st, err := s.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve status: %w", err)
		}
		log.Infof("status: %s", describeStatus(st))
	}
	if opts.weight {
		dp, err := s.Weight(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve weight: %w", err)
		}
		log.Infof("weight: %.3f %s (stable: %v, status: %s)", dp.Weight, dp.Unit, dp.Stable, describeStatus(dp.Status))
	}

	return nil
}

func newScale(cfg *config.Config) (*nciscale.Scale, error) {
	libLogger, err := scale.NewLogger(cfg.Log.EffectiveLevel(), cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	options := []func(*nciscale.Scale){
		nciscale.WithLogger(libLogger),
		nciscale.WithRetries(cfg.Protocol.Retries),
		nciscale.WithInterByteTimeout(cfg.Serial.InterByteTimeout),
	}
	if cfg.Protocol.Mock {
		return nciscale.New(append(options, nciscale.WithTransport(mock.New(mock.WithWeight(1.25, nci.UnitPounds))))...)
	}

	portCfg, err := cfg.PortConfig()
	if err != nil {
		return nil, err
	}

	return nciscale.New(append(options, nciscale.WithPortConfig(portCfg))...)
}

func describeStatus(st nci.Status) string {
	flags := st.String()
	for _, f := range []struct {
		set  bool
		name string
	}{
		{st.InMotion(), "motion"},
		{st.AtZero(), "zero"},
		{st.UnderCapacity(), "under capacity"},
		{st.OverCapacity(), "over capacity"},
		{st.NetWeight(), "net"},
		{st.RAMError(), "RAM error"},
		{st.EEPROMError(), "EEPROM error"},
		{st.ROMError(), "ROM error"},
		{st.FaultyCalibration(), "faulty calibration"},
		{st.InitialZeroError(), "initial zero error"},
	} {
		if f.set {
			flags += ", " + f.name
		}
	}
	return flags
}
