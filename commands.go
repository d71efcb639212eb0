package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/cache"
	"github.com/mikehamer/crazyclient/config"
	"github.com/mikehamer/crazyclient/crazyflie"
	"github.com/mikehamer/crazyclient/crazyserver"
	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/link"
	"github.com/mikehamer/crazyclient/toc"
)

var GLOBAL_FLAGS = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Value: "",
		Usage: "YAML configuration file",
	},
	cli.StringFlag{
		Name:  "link, l",
		Value: "",
		Usage: "Link URI, e.g. ble://Crazyflie or radio://0/80/2M/E7E7E7E7E7 (overrides the config file)",
	},
	cli.BoolFlag{
		Name:  "debug",
		Usage: "Verbose development logging",
	},
}

var COMMANDS = []cli.Command{
	{
		Name:  "serve",
		Usage: "Start the HTTP/REST server",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "listen",
				Value: "",
				Usage: "Listen address (default is 127.0.0.1:8000)",
			},
			cli.StringFlag{
				Name:  "static, s",
				Value: "",
				Usage: "Optional static folder. Served on /static with index.html accessible on /",
			},
			cli.DurationFlag{
				Name:  "commander-timeout",
				Value: time.Second,
				Usage: "Send zero thrust when no setpoint arrived for this long (0 disables)",
			},
			cli.BoolFlag{
				Name:  "connect",
				Usage: "Connect right away",
			},
		},
		Action: serveCommand,
	},
	{
		Name:  "fly",
		Usage: "Connect and stream a fixed setpoint",
		Flags: []cli.Flag{
			cli.Float64Flag{Name: "roll", Usage: "Roll in degrees"},
			cli.Float64Flag{Name: "pitch", Usage: "Pitch in degrees"},
			cli.Float64Flag{Name: "yaw", Usage: "Yaw rate in degrees per second"},
			cli.Float64Flag{Name: "thrust", Usage: "Thrust, 0 to 65535"},
			cli.DurationFlag{
				Name:  "duration, d",
				Value: 2 * time.Second,
				Usage: "How long to stream before disconnecting",
			},
		},
		Action: flyCommand,
	},
	{
		Name:  "toc",
		Usage: "Connect and print the parameter and log tables",
		Flags: []cli.Flag{
			cli.DurationFlag{
				Name:  "wait, w",
				Value: 10 * time.Second,
				Usage: "How long to wait for the tables",
			},
		},
		Action: tocCommand,
	},
	{
		Name:      "param",
		Usage:     "Connect and read a parameter, or write it when a value is given",
		ArgsUsage: "GROUP.NAME [VALUE]",
		Flags: []cli.Flag{
			cli.DurationFlag{
				Name:  "wait, w",
				Value: 10 * time.Second,
				Usage: "How long to wait for the parameter table",
			},
		},
		Action: paramCommand,
	},
}

// setup is shared by every command: configuration, logger and a session on
// the selected link. The caller closes the session.
type setup struct {
	cfg    *config.Config
	log    *zap.Logger
	opts   crazyflie.Config
	link   link.Link
	cf     *crazyflie.Crazyflie
	ctx    context.Context
	cancel context.CancelFunc
}

func newSetup(c *cli.Context) (*setup, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if uri := c.GlobalString("link"); uri != "" {
		cfg.Link = uri
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	logger, err := newLogger(c.GlobalBool("debug"))
	if err != nil {
		return nil, err
	}

	l, params, err := openLink(cfg.Link, cfg.Toc.Protocol == 2, logger)
	if err != nil {
		return nil, err
	}

	opts := cfg.SessionOptions()
	opts.Logger = logger
	opts.Link = params
	if cfg.Toc.Cache {
		store, err := cache.Open(cfg.Toc.CacheDir)
		if err != nil {
			logger.Warn("toc cache disabled", zap.Error(err))
		} else {
			opts.Toc.Cache = store
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &setup{
		cfg:    cfg,
		log:    logger,
		opts:   opts,
		link:   l,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// start binds the session to its notifier.
func (s *setup) start(notifier crazyflie.Notifier) {
	s.cf = crazyflie.New(s.link, notifier, s.opts)
}

func (s *setup) close() {
	if s.cf != nil {
		s.cf.Close()
	}
	s.cancel()
	s.log.Sync()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// connect blocks until the session connected or failed.
func (s *setup) connect() error {
	result := make(chan bool, 1)
	s.cf.Connect(func(connected bool) { result <- connected })

	select {
	case connected := <-result:
		if !connected {
			return fmt.Errorf("could not connect to %s", s.cfg.Link)
		}
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func serveCommand(c *cli.Context) error {
	s, err := newSetup(c)
	if err != nil {
		return err
	}
	defer s.close()

	events := crazyserver.NewEvents(s.log)
	s.start(events)

	if listen := c.String("listen"); listen != "" {
		s.cfg.Server.Listen = listen
	}
	if static := c.String("static"); static != "" {
		s.cfg.Server.Static = static
	}

	commander := crazyserver.NewCommander(c.Duration("commander-timeout"))
	s.cf.SetCommander(commander)

	if c.Bool("connect") {
		s.cf.Connect(nil)
	}

	server := crazyserver.New(s.cf, events, commander, crazyserver.Config{
		Listen: s.cfg.Server.Listen,
		Static: s.cfg.Server.Static,
		Logger: s.log,
	})
	return server.ListenAndServe(s.ctx)
}

// flyNotifier reports progress on the terminal.
type flyNotifier struct{}

func (n *flyNotifier) DidSend() {}

func (n *flyNotifier) DidUpdateState(state crazyflie.State) {
	fmt.Println("State:", state)
}

func (n *flyNotifier) DidFail(failure crazyflie.Failure) {
	fmt.Printf("%s: %s\n", failure.Title, failure.Detail)
}

type fixedSetpoint crazyflie.Setpoint

func (f fixedSetpoint) PrepareData() {}

func (f fixedSetpoint) Setpoint() crazyflie.Setpoint {
	return crazyflie.Setpoint(f)
}

func flyCommand(c *cli.Context) error {
	s, err := newSetup(c)
	if err != nil {
		return err
	}
	defer s.close()
	s.start(&flyNotifier{})

	s.cf.SetCommander(fixedSetpoint{
		Roll:   float32(c.Float64("roll")),
		Pitch:  float32(c.Float64("pitch")),
		Yaw:    float32(c.Float64("yaw")),
		Thrust: float32(c.Float64("thrust")),
	})

	if err := s.connect(); err != nil {
		return err
	}

	select {
	case <-time.After(c.Duration("duration")):
	case <-s.ctx.Done():
	}

	stats := s.cf.Stats()
	fmt.Printf("Sent %d setpoints in %d ticks\n", stats.Dispatch.Sent, stats.Dispatch.Ticks)
	return nil
}

// tocNotifier signals each loaded table.
type tocNotifier struct {
	flyNotifier
	tables chan *toc.Toc
}

func (n *tocNotifier) DidLoadToc(t *toc.Toc) {
	select {
	case n.tables <- t:
	default:
	}
}

func tocCommand(c *cli.Context) error {
	s, err := newSetup(c)
	if err != nil {
		return err
	}
	defer s.close()

	notifier := &tocNotifier{tables: make(chan *toc.Toc, 2)}
	s.start(notifier)

	if err := s.connect(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, c.Duration("wait"))
	defer cancel()

	params, err := waitToc(ctx, notifier.tables)
	if err != nil {
		return err
	}
	printToc(params)

	var logs *toc.Toc
	if s.cfg.Toc.FetchLog {
		logs, err = waitToc(ctx, notifier.tables)
	} else {
		logs, err = s.cf.RequestToc(ctx, crtp.PortLog)
	}
	if err != nil {
		return err
	}
	printToc(logs)
	return nil
}

func paramCommand(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.NewExitError("usage: param GROUP.NAME [VALUE]", 1)
	}
	name := c.Args().Get(0)

	var value float64
	write := c.NArg() == 2
	if write {
		var err error
		if value, err = strconv.ParseFloat(c.Args().Get(1), 64); err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
	}

	s, err := newSetup(c)
	if err != nil {
		return err
	}
	defer s.close()

	notifier := &tocNotifier{tables: make(chan *toc.Toc, 2)}
	s.start(notifier)

	if err := s.connect(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, c.Duration("wait"))
	defer cancel()

	if _, err := waitToc(ctx, notifier.tables); err != nil {
		return err
	}

	if write {
		if err := s.cf.WriteParam(ctx, name, value); err != nil {
			return err
		}
	}

	current, err := s.cf.ReadParam(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %v\n", name, current)
	return nil
}

func waitToc(ctx context.Context, tables <-chan *toc.Toc) (*toc.Toc, error) {
	select {
	case t := <-tables:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func printToc(t *toc.Toc) {
	fmt.Printf("%s table, %d entries, CRC %08X\n", t.Port, t.Len(), t.CRC)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tACCESS")
	for _, e := range t.Entries {
		access := "RW"
		if e.ReadOnly || t.Port == crtp.PortLog {
			access = "RO"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.FullName(), e.Type, access)
	}
	w.Flush()
	fmt.Println()
}
