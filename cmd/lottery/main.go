// Package main launches the in-enclave lottery backend: it watches the
// lottery contract, mirrors its state into memory, serves the web gateway
// and drives rounds to completion as the passive operator.
package main

import (
	"fmt"
	"os"
	goruntime "runtime"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/zfdang/enclave-lottery-app-sub000/cmd/lottery/flags"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/node"
	"github.com/zfdang/enclave-lottery-app-sub000/monitoring/prometheus"
	"github.com/zfdang/enclave-lottery-app-sub000/runtime/version"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	flags.ConfigFileFlag,
	flags.VerbosityFlag,
	flags.LogFormat,
	flags.HTTPHostFlag,
	flags.HTTPPortFlag,
	flags.EnableTracingFlag,
	flags.TracingProcessNameFlag,
	flags.TracingEndpointFlag,
	flags.TraceSampleFractionFlag,
}

func startNode(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(flags.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	lottery, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	lottery.Start()
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "lottery"
	app.Usage = "runs the enclave-resident backend for the on-chain lottery contract"
	app.Version = version.Version()
	app.Flags = appFlags
	app.Action = startNode
	app.Before = func(ctx *cli.Context) error {
		format := ctx.String(flags.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}
		logrus.AddHook(prometheus.NewLogrusCollector())

		goruntime.GOMAXPROCS(goruntime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
