package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oarkflow/log"
	"github.com/urfave/cli/v2"

	"github.com/oarkflow/hl7/pkg/adapters/fileadapter"
	"github.com/oarkflow/hl7/pkg/adapters/hl7adapter"
	"github.com/oarkflow/hl7/pkg/adapters/mqadapter"
	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/ingest"
	"github.com/oarkflow/hl7/pkg/parsers"
	"github.com/oarkflow/hl7/pkg/server"
	"github.com/oarkflow/hl7/pkg/store"
)

var (
	version = "dev"
	logger  = &log.DefaultLogger
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("hl7 failed")
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "hl7",
		Usage:   "Query HL7 v2 messages by path",
		Version: version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file (BCL, YAML, or JSON)",
				EnvVars: []string{"HL7_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "query",
				Usage: "Print the value at one or more paths for every message",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.StringSliceFlag{Name: "path", Aliases: []string{"p"}, Usage: "Path such as PID.3.0", Required: true},
					&cli.IntFlag{Name: "index", Value: -1, Usage: "Only look at the segment on this line"},
					&cli.BoolFlag{Name: "first", Usage: "Use the first matching segment instead of the last"},
				},
				Action: queryAction,
			},
			{
				Name:  "segments",
				Usage: "List segments, optionally filtered by type or line index",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}},
					&cli.IntFlag{Name: "index", Value: -1},
					&cli.BoolFlag{Name: "paths", Usage: "Also print every leaf path of each segment"},
				},
				Action: segmentsAction,
			},
			{
				Name:  "groups",
				Usage: "Split messages into blocks starting at a segment type",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true},
					&cli.BoolFlag{Name: "corrected", Usage: "Keep the final block and drop the leading one"},
				},
				Action: groupsAction,
			},
			{
				Name:  "text",
				Usage: "Rebuild each message with one segment per line",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.BoolFlag{Name: "line-order", Usage: "Write segments in line order instead of moving MSH to the front"},
				},
				Action: textAction,
			},
			{
				Name:  "document",
				Usage: "Render each message as JSON or XML",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.StringFlag{Name: "format", Value: "json", Usage: "json or xml"},
				},
				Action: documentAction,
			},
			{
				Name:  "extract",
				Usage: "Append one record of path values per message to a JSON file",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.StringSliceFlag{Name: "path", Aliases: []string{"p"}, Required: true},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true},
					&cli.BoolFlag{Name: "dedup", Usage: "Skip records already present in the output"},
				},
				Action: extractAction,
			},
			{
				Name:  "publish",
				Usage: "Publish messages from a file to an AMQP queue",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.StringFlag{Name: "uri", EnvVars: []string{"HL7_AMQP_URI"}, Required: true},
					&cli.StringFlag{Name: "queue", Value: "hl7"},
				},
				Action: publishAction,
			},
			{
				Name:  "serve",
				Usage: "Start the HL7 query API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "Overrides server.address"},
					&cli.BoolFlag{Name: "access-log", Usage: "Log every request"},
				},
				Action: serveAction,
			},
		},
	}
}

func fileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "File holding one or more HL7 messages, - for stdin",
		Required: true,
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newParser(cfg *config.Config) *parsers.HL7Parser {
	return parsers.NewHL7Parser(
		parsers.WithEagerParse(cfg.Parser.EagerParse),
		parsers.WithNewlineSegments(cfg.Parser.NewlineSegments),
	)
}

func fileSource(c *cli.Context) contracts.Source {
	path := c.String("file")
	if path == "-" {
		return hl7adapter.NewFileSource("stdin", hl7adapter.WithReader(c.App.Reader))
	}
	return hl7adapter.NewFileSource(path)
}

// eachMessage runs fn over every message of the --file source.
func eachMessage(c *cli.Context, fn func(n int, msg *hl7.Message) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	n := 0
	runner := ingest.NewRunner(newParser(cfg), ingest.WithStopOnError())
	_, err = runner.Run(c.Context, fileSource(c), func(_ context.Context, _ contracts.Envelope, msg *hl7.Message) error {
		n++
		return fn(n, msg)
	})
	return err
}

func queryAction(c *cli.Context) error {
	paths := c.StringSlice("path")
	index := c.Int("index")
	first := c.Bool("first")
	return eachMessage(c, func(n int, msg *hl7.Message) error {
		for _, path := range paths {
			var value string
			switch {
			case index >= 0:
				value = msg.ValueAt(path, index)
			case first:
				value = msg.FirstValue(path)
			default:
				value = msg.Value(path)
			}
			fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\n", n, path, value)
		}
		return nil
	})
}

func segmentsAction(c *cli.Context) error {
	typ := c.String("type")
	index := c.Int("index")
	withPaths := c.Bool("paths")
	return eachMessage(c, func(n int, msg *hl7.Message) error {
		segments := msg.Segments()
		if typ != "" {
			segments = msg.SegmentsByType(typ)
		} else if index >= 0 {
			segments = msg.SegmentsByIndex(index)
		}
		for _, segment := range segments {
			fmt.Fprintf(c.App.Writer, "%d\t%d\t%s\t%s\n", n, segment.Index(), segment.Type(), segment.Raw())
			if !withPaths {
				continue
			}
			for _, path := range segment.Paths() {
				fmt.Fprintf(c.App.Writer, "\t\t%s\t%s\n", path, segment.Value(path))
			}
		}
		return nil
	})
}

func groupsAction(c *cli.Context) error {
	typ := c.String("type")
	corrected := c.Bool("corrected")
	return eachMessage(c, func(n int, msg *hl7.Message) error {
		groups := msg.GroupedSegments(typ)
		if corrected {
			groups = msg.Groups(typ)
		}
		for g, group := range groups {
			types := make([]string, len(group))
			for i, segment := range group {
				types[i] = fmt.Sprintf("%s@%d", segment.Type(), segment.Index())
			}
			fmt.Fprintf(c.App.Writer, "%d\t%d\t%s\n", n, g, strings.Join(types, " "))
		}
		return nil
	})
}

func textAction(c *cli.Context) error {
	includeHeader := !c.Bool("line-order")
	return eachMessage(c, func(n int, msg *hl7.Message) error {
		text, err := msg.Text(includeHeader)
		if err != nil {
			return fmt.Errorf("message %d: %w", n, err)
		}
		_, err = io.WriteString(c.App.Writer, text)
		return err
	})
}

func documentAction(c *cli.Context) error {
	format := c.String("format")
	if format != "json" && format != "xml" {
		return fmt.Errorf("unsupported format %q", format)
	}
	return eachMessage(c, func(n int, msg *hl7.Message) error {
		doc := parsers.NewDocument(msg)
		var data []byte
		var err error
		if format == "xml" {
			data, err = doc.XML()
		} else {
			data, err = doc.JSON()
		}
		if err != nil {
			return fmt.Errorf("message %d: %w", n, err)
		}
		_, err = fmt.Fprintln(c.App.Writer, string(data))
		return err
	})
}

func extractAction(c *cli.Context) error {
	paths := c.StringSlice("path")
	loader := fileadapter.New(c.String("out"), c.Bool("dedup"))
	if err := loader.Setup(c.Context); err != nil {
		return err
	}
	defer loader.Close()
	var batch []contracts.Record
	err := eachMessage(c, func(_ int, msg *hl7.Message) error {
		rec := contracts.Record{"message_type": msg.Type(), "control_id": msg.ControlID()}
		for _, path := range paths {
			rec[path] = msg.Value(path)
		}
		batch = append(batch, rec)
		return nil
	})
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return loader.StoreBatch(c.Context, batch)
}

func publishAction(c *cli.Context) error {
	queue := mqadapter.New(c.String("uri"), c.String("queue"))
	if err := queue.Setup(c.Context); err != nil {
		return err
	}
	defer queue.Close()
	src := fileSource(c)
	if err := src.Setup(c.Context); err != nil {
		return err
	}
	defer src.Close()
	envelopes, err := src.Extract(c.Context)
	if err != nil {
		return err
	}
	published := 0
	for env := range envelopes {
		if err := queue.Publish(c.Context, env.Raw); err != nil {
			return err
		}
		published++
	}
	logger.Info().Int("messages", published).Str("queue", c.String("queue")).Msg("published")
	return nil
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("address"); addr != "" {
		cfg.Server.Address = addr
	}
	ttl, err := cfg.Store.TTLDuration()
	if err != nil {
		return err
	}
	messages, err := store.New(store.WithMaxMessages(cfg.Store.MaxMessages), store.WithTTL(ttl))
	if err != nil {
		return err
	}
	defer messages.Close()

	parser := newParser(cfg)
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, src := range cfg.Sources {
		go loadSource(ctx, parser, messages, src)
	}

	srv := server.NewServer(server.Config{
		Version:     version,
		BodyLimitKB: cfg.Server.BodyLimitKB,
		EnableCORS:  cfg.Server.EnableCORS,
		AccessLog:   c.Bool("access-log"),
	}, parser, messages)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Address)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown()
	}
}

func loadSource(ctx context.Context, parser *parsers.HL7Parser, messages *store.Store, cfg config.SourceConfig) {
	var src contracts.Source
	switch cfg.Type {
	case "file":
		var opts []hl7adapter.FileSourceOption
		if cfg.SplitOnBlankLine != nil {
			opts = append(opts, hl7adapter.WithBlankLineSplit(*cfg.SplitOnBlankLine))
		}
		src = hl7adapter.NewFileSource(cfg.Path, opts...)
	case "amqp":
		src = mqadapter.New(cfg.URI, cfg.Queue)
	default:
		return
	}
	summary, err := ingest.NewRunner(parser).Run(ctx, src, func(_ context.Context, env contracts.Envelope, msg *hl7.Message) error {
		_, err := messages.Put(msg, env.Origin)
		return err
	})
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Str("source", cfg.Name).Msg("source stopped")
		return
	}
	logger.Info().Str("source", cfg.Name).Int("stored", summary.Parsed).Msg("source loaded")
}
