package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nao-Mk2/aws-logs-shipper/cmd"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/buffer"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/classify"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/client"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/model"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/shipper"
)

// inputLine is one stdin record: {"tag":"app.web","time":1700000000,"record":{...}}.
// time is epoch seconds and defaults to now when omitted.
type inputLine struct {
	Tag    string         `json:"tag"`
	Time   int64          `json:"time"`
	Record map[string]any `json:"record"`
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: aws-logs-shipper --log-group-name <name> --log-stream-name <name> [--auto-create] [flags]")
	fmt.Fprintln(os.Stderr, "Reads JSON lines {\"tag\":...,\"time\":...,\"record\":{...}} from stdin and ships them to CloudWatch Logs.")
	fmt.Fprintln(os.Stderr, "Exactly one group naming policy and one stream naming policy must be configured.")
	os.Exit(2)
}

func main() {
	opts := cmd.CollectOptions()
	classifier, err := classify.New(opts.GroupAxis(), opts.StreamAxis())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		usage()
	}

	var log zerolog.Logger
	if opts.JSONLog {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
			w.TimeFormat = "15:04:05.000"
		})).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cw, err := client.NewCloudWatchClient(ctx, opts.Region, opts.Profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create CloudWatch client: %v\n", err)
		os.Exit(1)
	}

	ship := shipper.New(cw, classifier, shipper.Config{
		AutoCreate:      opts.AutoCreate,
		MessageKey:      opts.MessageKey,
		MaxMessageBytes: opts.MaxMessageBytes,
		MaxBatchEvents:  opts.MaxBatchEvents,
	}, log)

	buf := buffer.New(ship.ShipCycle, buffer.Options{
		FlushInterval: opts.FlushInterval,
		FlushSize:     opts.FlushSize,
	}, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf.Run(ctx)
	}()

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var in inputLine
		if err := json.Unmarshal(line, &in); err != nil {
			log.Warn().Err(err).Msg("skipping malformed input line")
			continue
		}
		ts := time.Now()
		if in.Time > 0 {
			ts = time.Unix(in.Time, 0)
		}
		buf.Add(model.Record{Tag: in.Tag, Time: ts, Data: in.Record})
	}
	if err := sc.Err(); err != nil {
		log.Error().Err(err).Msg("stdin read failed")
	}

	// Stdin is exhausted (or we were signalled): stop the flush loop, which
	// performs a final flush before returning.
	stop()
	<-done
}
