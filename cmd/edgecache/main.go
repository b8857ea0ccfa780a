package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	edgecache "github.com/muhlstore/edgecache"
	"github.com/muhlstore/edgecache/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	controlPortFlag    int
	originFlag         string
	publicURLFlag      string
	providerFlag       string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Storefront origin URL to proxy to")
	flag.StringVar(&publicURLFlag, "public-url", "http://localhost:3000", "URL this worker is served at")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.IntVar(&controlPortFlag, "control-port", 8081, "Port for the control and metrics endpoints")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Caching provider to use (sqlite or memory)")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	workerConfig := edgecache.Config{
		Logger: &log.Logger,
	}

	if configFilenameFlag != "" {
		config, err := getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		workerConfig.Product = config.Product
		workerConfig.Version = config.Version
		workerConfig.APIPrefix = config.APIPrefix
		workerConfig.OfflinePath = config.OfflinePath
		workerConfig.PrewarmManifest = config.Prewarm
	}

	// use configured provider, fail if none matches
	switch providerFlag {
	case "sqlite":
		dbFilename := dbFilenameFlag
		if dbFilename == "memory" {
			dbFilename = ""
		}
		workerConfig.Cache = cache.NewSQLiteCache(dbFilename)
	case "memory":
		workerConfig.Cache = cache.NewMemoryCache()
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", providerFlag)
	}

	if originFlag == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(originFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}
	workerConfig.OriginURL = *originURL

	publicURL, err := url.Parse(publicURLFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse public url")
	}
	workerConfig.PublicURL = *publicURL

	worker := edgecache.CreateWorker(workerConfig)
	if err := worker.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Could not activate worker")
	}

	go func() {
		log.Info().Msgf("Control endpoints on port %v", controlPortFlag)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", controlPortFlag), worker.ControlHandler()); err != nil {
			log.Fatal().Err(err).Msg("Control listener failed")
		}
	}()

	log.Info().Msgf("Proxying port %v to %s", portFlag, workerConfig.OriginURL.String())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), worker); err != nil {
		log.Fatal().Err(err).Msg("Proxy listener failed")
	}
}
