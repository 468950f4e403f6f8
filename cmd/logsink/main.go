package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Geun-Oh/logsink/internal/config"
	"github.com/Geun-Oh/logsink/internal/monitor"
	"github.com/Geun-Oh/logsink/internal/parser"
	"github.com/Geun-Oh/logsink/internal/pipeline"
	"github.com/Geun-Oh/logsink/internal/sink"
	"github.com/Geun-Oh/logsink/internal/source"
	"github.com/Geun-Oh/logsink/internal/store"
)

var (
	cfgPath        string
	flagHost       string
	flagPort       int
	flagDatabase   string
	flagCollection string
	flagUsername   string
	flagPassword   string
	flagRetention  int
	flagCollect    bool
	flagVerbose    bool
	flagFile       string
	flagFollow     bool
	flagDocker     string
	flagGrok       string
	flagDryRun     bool
	flagOut        string

	rootCmd = &cobra.Command{
		Use:   "logsink [flags] [-- command [args...]]",
		Short: "logsink ships structured log records into MongoDB",
		Long: `logsink reads log records (JSON Lines or plain text) from stdin, a file,
a command, or a Docker container, normalizes them into a canonical document
shape, and persists them into a MongoDB collection with optional index
provisioning and time-based retention cleanup.`,
		Args:         cobra.ArbitraryArgs,
		RunE:         run,
		SilenceUsage: true,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")
	flags.StringVar(&flagHost, "host", "", "MongoDB host")
	flags.IntVar(&flagPort, "port", 0, "MongoDB port")
	flags.StringVarP(&flagDatabase, "database", "d", "", "target database name")
	flags.StringVar(&flagCollection, "collection", "", "target collection name")
	flags.StringVar(&flagUsername, "username", "", "MongoDB username")
	flags.StringVar(&flagPassword, "password", "", "MongoDB password")
	flags.IntVar(&flagRetention, "retention", 0, "seconds before a record is deleted; 0 disables cleanup")
	flags.BoolVar(&flagCollect, "collect-fields", false, "periodically record distinct field names")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "diagnostic logging and insertion counting")
	flags.StringVarP(&flagFile, "file", "f", "", "read records from a file instead of stdin")
	flags.BoolVar(&flagFollow, "follow", false, "keep reading as the input file grows")
	flags.StringVar(&flagDocker, "docker", "", "read records from a Docker container's logs")
	flags.StringVar(&flagGrok, "grok", "", "grok pattern for structuring plain-text lines")
	flags.BoolVar(&flagDryRun, "dry-run", false, "print normalized documents to stdout instead of inserting")
	flags.StringVar(&flagOut, "out", "", "also append normalized documents to a JSON Lines file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	verbose := resolveVerbose(cmd, cfg)

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	grokPattern := flagGrok
	if grokPattern == "" {
		grokPattern = cfg.Source.Grok
	}
	var grok *parser.GrokParser
	if grokPattern != "" {
		grok, err = parser.NewGrokParser(grokPattern)
		if err != nil {
			return err
		}
	}

	src := buildSource(cfg, args, grok)

	sinks, err := buildSinks(cfg, log, verbose)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return pipeline.Run(ctx, &pipeline.Config{
		Source:      src,
		Sinks:       sinks,
		Stats:       monitor.NewStats(),
		ShowSummary: verbose,
	})
}

// loadConfig reads the config file when given and layers flag overrides on
// top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Mongo.Host = flagHost
	}
	if flags.Changed("port") {
		cfg.Mongo.Port = flagPort
	}
	if flags.Changed("database") {
		cfg.Mongo.Database = flagDatabase
	}
	if flags.Changed("collection") {
		cfg.Mongo.Collection = flagCollection
	}
	if flags.Changed("username") {
		cfg.Mongo.Username = flagUsername
	}
	if flags.Changed("password") {
		cfg.Mongo.Password = flagPassword
	}
	if flags.Changed("retention") {
		retention := flagRetention
		cfg.Mongo.Retention = &retention
	}
	if flags.Changed("collect-fields") {
		cfg.Mongo.CollectFields = flagCollect
	}

	if flagDryRun {
		// No database target needed for a preview run.
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveVerbose picks the verbose setting: an explicit flag wins, then the
// config file; unset defaults to true only on an interactive terminal.
func resolveVerbose(cmd *cobra.Command, cfg *config.Config) bool {
	if cmd.Flags().Changed("verbose") {
		return flagVerbose
	}
	if cfg.Verbose != nil {
		return *cfg.Verbose
	}
	return isatty.IsTerminal(os.Stdin.Fd())
}

// buildSource selects the record source. Positional args run a command;
// --docker and --file take precedence over the config file; stdin is the
// default.
func buildSource(cfg *config.Config, args []string, grok *parser.GrokParser) source.Source {
	switch {
	case len(args) > 0:
		return source.NewExecSource(args[0], args[1:], grok)
	case flagDocker != "":
		return source.NewDockerSource(flagDocker, flagFollow, grok)
	case flagFile != "":
		return source.NewFileSource(flagFile, flagFollow, grok)
	}

	switch cfg.Source.Type {
	case "file":
		return source.NewFileSource(cfg.Source.Path, cfg.Source.Follow, grok)
	case "exec":
		return source.NewExecSource(cfg.Source.Command, cfg.Source.Args, grok)
	case "docker":
		return source.NewDockerSource(cfg.Source.Path, cfg.Source.Follow, grok)
	default:
		return source.NewStdinSource(grok)
	}
}

// buildSinks assembles the sink list: the mongo sink (or the JSON preview
// sink under --dry-run), plus an optional JSON Lines file tee.
func buildSinks(cfg *config.Config, log *logrus.Logger, verbose bool) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if flagDryRun {
		sinks = append(sinks, sink.NewJSONSink(os.Stdout))
	} else {
		st := store.NewMongo(cfg.StoreOptions())
		sinks = append(sinks, sink.NewMongo(st, cfg.Mongo.Collection,
			sink.WithIndexes(cfg.IndexSpecs()),
			sink.WithRetention(cfg.RetentionDuration()),
			sink.WithFieldCollection(cfg.Mongo.CollectFields),
			sink.WithLogger(log),
			sink.WithVerbose(verbose),
		))
	}

	if flagOut != "" {
		fs, err := sink.NewFileSink(flagOut)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}

	return sinks, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
