// Command blockwalk inspects block-reference drawings: it counts, prints,
// explodes, measures and tessellates the block graph of a drawing loaded
// from a script, a document or a SQLite database.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/chazu/blockwalk/internal/config"
	"github.com/chazu/blockwalk/internal/logger"
	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/traverse"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags and the config they refine.
type rootOptions struct {
	configPath string
	verbose    bool
	format     string
	roots      []string
	resolution string
	flat       bool
	nested     bool
	timeout    time.Duration

	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "blockwalk",
		Short:         "Walk the block-reference graph of a drawing",
		Long:          "blockwalk loads a drawing (.bwl script, .yaml/.json/.toml document, optionally .zst compressed, or a .db SQLite store) and runs traversals over its block references.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.complete(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "config file (default: blockwalk.{yaml,toml,json} in . or the user config dir)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&o.format, "format", "", "output format: table|json")
	flags.StringSliceVar(&o.roots, "root", nil, "layout or block names to start from (default: every layout)")
	flags.StringVar(&o.resolution, "resolution", "", "reference resolution: instantiated|canonical")
	flags.BoolVar(&o.flat, "flat", false, "visit each definition once, without reference frames")
	flags.BoolVar(&o.nested, "nested", true, "descend into references nested in definitions")
	flags.DurationVar(&o.timeout, "script-timeout", 0, "limit for evaluating a .bwl script (default from config, 5s)")

	cmd.AddCommand(
		newCountCmd(o),
		newTreeCmd(o),
		newExtentsCmd(o),
		newExplodeCmd(o),
		newMeshCmd(o),
		newValidateCmd(o),
		newConvertCmd(o),
	)
	return cmd
}

// complete loads the config and lets explicitly set flags override it.
func (o *rootOptions) complete(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = o.format
	}
	if flags.Changed("resolution") {
		cfg.Traverse.Resolution = o.resolution
	}
	if flags.Changed("flat") {
		cfg.Traverse.Flat = o.flat
	}
	if flags.Changed("nested") {
		cfg.Traverse.Nested = o.nested
	}
	if flags.Changed("script-timeout") {
		cfg.Script.Timeout = o.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	return logger.Init(logger.Options{
		Level:        cfg.Logging.Level,
		Verbose:      o.verbose,
		DisableColor: cfg.Logging.DisableColor,
		Output:       cmd.ErrOrStderr(),
	})
}

// traverseOptions builds the traversal options shared by every command.
func (o *rootOptions) traverseOptions(command string) []traverse.Option {
	return []traverse.Option{
		traverse.WithFlat(o.cfg.Traverse.Flat),
		traverse.WithResolution(o.cfg.Resolution()),
		traverse.WithRetainedCache(o.cfg.Traverse.RetainCache),
		traverse.WithLogger(logrus.WithField("command", command)),
	}
}

// rootIDs resolves --root names, or returns every layout of d.
func (o *rootOptions) rootIDs(d *drawing) ([]blockdb.NodeID, error) {
	if len(o.roots) == 0 {
		ids, err := d.layouts()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errors.New("drawing has no layouts; name a block with --root")
		}
		return ids, nil
	}
	ids := make([]blockdb.NodeID, 0, len(o.roots))
	for _, name := range o.roots {
		id, err := d.lookup(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func logStats(command string, s traverse.Stats) {
	logrus.WithFields(logrus.Fields{
		"command":  command,
		"frames":   s.Frames,
		"payloads": s.Payloads,
		"hits":     s.CacheHits,
		"misses":   s.CacheMisses,
		"depth":    s.MaxDepth,
	}).Debug("traversal done")
}
