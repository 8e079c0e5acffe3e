// Package flags defines the command-line surface of the lottery binary.
// Runtime tuning lives in lottery.conf; flags cover process-level concerns
// such as logging and tracing.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// ConfigFileFlag points at the lottery.conf file. When unset the
	// default paths are probed.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to the lottery configuration file",
	}
	// VerbosityFlag sets the global logging level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
	// LogFormat selects the log output format.
	LogFormat = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Specify log formatting. Supports: text, json, fluentd.",
		Value: "text",
	}
	// HTTPHostFlag overrides the gateway bind host from lottery.conf.
	HTTPHostFlag = &cli.StringFlag{
		Name:  "http-host",
		Usage: "Host on which the gateway listens, overriding the config file",
	}
	// HTTPPortFlag overrides the gateway bind port from lottery.conf.
	HTTPPortFlag = &cli.IntFlag{
		Name:  "http-port",
		Usage: "Port on which the gateway listens, overriding the config file",
	}
	// EnableTracingFlag turns the opencensus exporter on.
	EnableTracingFlag = &cli.BoolFlag{
		Name:  "enable-tracing",
		Usage: "Enable request tracing",
	}
	// TracingProcessNameFlag names this process in trace output.
	TracingProcessNameFlag = &cli.StringFlag{
		Name:  "tracing-process-name",
		Usage: "The name to apply to tracing tag \"process_name\"",
		Value: "lottery",
	}
	// TracingEndpointFlag is the collector the jaeger exporter ships to.
	TracingEndpointFlag = &cli.StringFlag{
		Name:  "tracing-endpoint",
		Usage: "Tracing endpoint defines where the lottery backend sends spans to",
		Value: "http://127.0.0.1:14268/api/traces",
	}
	// TraceSampleFractionFlag is the fraction of requests sampled.
	TraceSampleFractionFlag = &cli.Float64Flag{
		Name:  "trace-sample-fraction",
		Usage: "Indicate what fraction of requests are sampled for tracing",
		Value: 0.20,
	}
)
