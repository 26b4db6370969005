package cmd

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/Nao-Mk2/aws-logs-shipper/internal/classify"
)

// Options holds CLI options after parsing flags and env defaults.
type Options struct {
	Region  string
	Profile string

	GroupName          string
	UseTagAsGroup      bool
	GroupNameKey       string
	RemoveGroupNameKey bool

	StreamName          string
	UseTagAsStream      bool
	StreamNameKey       string
	RemoveStreamNameKey bool

	MessageKey      string
	AutoCreate      bool
	MaxBatchEvents  int
	MaxMessageBytes int

	FlushInterval time.Duration
	FlushSize     int

	JSONLog bool
}

// GroupAxis returns the classifier configuration for the group axis.
func (o *Options) GroupAxis() classify.Axis {
	return classify.Axis{
		Fixed:       o.GroupName,
		FromTag:     o.UseTagAsGroup,
		FieldPath:   o.GroupNameKey,
		RemoveField: o.RemoveGroupNameKey,
	}
}

// StreamAxis returns the classifier configuration for the stream axis.
func (o *Options) StreamAxis() classify.Axis {
	return classify.Axis{
		Fixed:       o.StreamName,
		FromTag:     o.UseTagAsStream,
		FieldPath:   o.StreamNameKey,
		RemoveField: o.RemoveStreamNameKey,
	}
}

// Validate checks the naming-policy configuration before anything is built.
// Returning a non-nil error is fatal; no record may be processed with an
// ambiguous axis.
func (o *Options) Validate() error {
	if _, err := classify.New(o.GroupAxis(), o.StreamAxis()); err != nil {
		return err
	}
	return nil
}

// CollectOptions parses flags with environment-backed defaults and returns
// Options.
func CollectOptions() *Options {
	o := &Options{}

	flag.StringVar(&o.Region, "region", os.Getenv("AWS_REGION"), "AWS region (optional; falls back to AWS defaults)")
	flag.StringVar(&o.Profile, "profile", os.Getenv("AWS_PROFILE"), "AWS shared config profile (optional)")

	flag.StringVar(&o.GroupName, "log-group-name", os.Getenv("LOG_GROUP_NAME"), "Fixed log group name")
	flag.BoolVar(&o.UseTagAsGroup, "use-tag-as-group", false, "Use the record tag as the log group name")
	flag.StringVar(&o.GroupNameKey, "log-group-name-key", "", "Record field holding the log group name (JMESPath)")
	flag.BoolVar(&o.RemoveGroupNameKey, "remove-log-group-name-key", false, "Delete the group-name field from the record after use")

	flag.StringVar(&o.StreamName, "log-stream-name", os.Getenv("LOG_STREAM_NAME"), "Fixed log stream name")
	flag.BoolVar(&o.UseTagAsStream, "use-tag-as-stream", false, "Use the record tag as the log stream name")
	flag.StringVar(&o.StreamNameKey, "log-stream-name-key", "", "Record field holding the log stream name (JMESPath)")
	flag.BoolVar(&o.RemoveStreamNameKey, "remove-log-stream-name-key", false, "Delete the stream-name field from the record after use")

	flag.StringVar(&o.MessageKey, "message-key", "", "Record field to send as the event message (default: whole record as JSON)")
	flag.BoolVar(&o.AutoCreate, "auto-create", envBool("AUTO_CREATE_DESTINATIONS"), "Create missing log groups and streams")
	flag.IntVar(&o.MaxBatchEvents, "max-batch-events", 10000, "Maximum events per PutLogEvents request")
	flag.IntVar(&o.MaxMessageBytes, "max-message-bytes", 0, "Truncate messages longer than this many bytes (0 = no truncation)")

	flag.DurationVar(&o.FlushInterval, "flush-interval", 5*time.Second, "Interval between delivery cycles")
	flag.IntVar(&o.FlushSize, "flush-size", 1000, "Buffered record count that triggers an early cycle")

	flag.BoolVar(&o.JSONLog, "json-log", false, "Emit internal logs as JSON instead of console format")
	flag.Parse()

	return o
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
