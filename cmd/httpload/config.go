package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/go-httpext/pkg/client"
)

const (
	appName   = "httpload"
	envPrefix = "HTTPLOAD"
)

// config of one httpload run, see newFlagSet for descriptions.
type config struct {
	Delay     time.Duration
	Every     int
	Bucket    string
	Retries   int
	Timeout   time.Duration
	UserAgent string
	Verbose   bool
	URLs      []string
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(out, "Usage: %s [flags] URL...\n\nLoads URLs one by one, with a delay between requests.\n\nFlags:\n%s", appName, fs.FlagUsages())
	}
	fs.Duration("delay", 0, "delay after each request, or after each n-th request if --every is set")
	fs.Int("every", 1, "apply the delay after every n-th request")
	fs.String("bucket", "", `gocloud bucket URL to store bodies, for example "file:///tmp/out" or "s3://bucket", stdout if empty`)
	fs.Int("retries", client.RetriesCount, "retries count of a failed request")
	fs.Duration("timeout", client.RequestTimeout, "total timeout of one request, including retries")
	fs.String("user-agent", client.DefaultUserAgent, "User-Agent header")
	fs.StringP("config", "c", "", "path to a config file, yaml, json or toml")
	fs.BoolP("verbose", "v", false, "log each request")
	return fs
}

// loadConfig parses flags and merges them with environment variables HTTPLOAD_* and the optional config file.
// Flags take precedence over the environment and the environment over the file.
func loadConfig(args []string, out io.Writer) (config, error) {
	fs := newFlagSet(out)
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, err
	}

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf(`cannot read config file "%s": %w`, f.Value.String(), err)
		}
	}

	cfg := config{
		Delay:     v.GetDuration("delay"),
		Every:     v.GetInt("every"),
		Bucket:    v.GetString("bucket"),
		Retries:   v.GetInt("retries"),
		Timeout:   v.GetDuration("timeout"),
		UserAgent: v.GetString("user-agent"),
		Verbose:   v.GetBool("verbose"),
		URLs:      fs.Args(),
	}
	if len(cfg.URLs) == 0 {
		cfg.URLs = v.GetStringSlice("urls")
	}

	return cfg, cfg.validate()
}

func (c config) validate() error {
	var errs *multierror.Error
	if len(c.URLs) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("at least one URL must be specified"))
	}
	if c.Delay < 0 {
		errs = multierror.Append(errs, fmt.Errorf(`delay "%s" must not be negative`, c.Delay))
	}
	if c.Every < 1 {
		errs = multierror.Append(errs, fmt.Errorf(`every "%d" must be greater than zero`, c.Every))
	}
	if c.Retries < 0 {
		errs = multierror.Append(errs, fmt.Errorf(`retries "%d" must not be negative`, c.Retries))
	}
	if c.Timeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf(`timeout "%s" must be greater than zero`, c.Timeout))
	}
	return errs.ErrorOrNil()
}

func (c config) retry() client.RetryConfig {
	retry := client.DefaultRetry()
	retry.Count = c.Retries
	retry.TotalRequestTimeout = c.Timeout
	return retry
}
