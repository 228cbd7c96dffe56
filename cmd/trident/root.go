package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/trident"
	"github.com/hupe1980/trident/internal/compress"
	"github.com/hupe1980/trident/internal/config"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// NewRootCmd creates the root trident command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "trident",
		Short:         "Trident: a read-optimized RDF triple store",
		Long:          "Trident bulk-loads integer-encoded triples into six permutation indexes and answers triple patterns over them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().StringP("dir", "d", "", "knowledge base directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newBuildCmd(a),
		newQueryCmd(a),
		newExistsCmd(a),
		newCardCmd(a),
		newUpdateCmd(a, "add"),
		newUpdateCmd(a, "remove"),
		newStatsCmd(a),
		newTermsCmd(a),
		newPushCmd(a),
		newPullCmd(a),
		newConfigCmd(a),
	)

	return root
}

// setup prepares the Viper instance with defaults, env bindings, flag
// bindings and optional config file (flag > env > file > defaults), then
// decodes it.
func (a *app) setup(cmd *cobra.Command) error {
	v := a.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName(config.FileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/trident")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("reading config: %w", err)
			}
		}
	}

	if err := v.BindPFlag("dir", cmd.Root().PersistentFlags().Lookup("dir")); err != nil {
		return fmt.Errorf("binding dir flag: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		v.Set("log.level", "debug")
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) logger() *trident.Logger {
	lvl, _ := a.cfg.Log.SlogLevel()
	if a.cfg.Log.Format == "json" {
		return trident.NewJSONLogger(lvl)
	}
	return trident.NewTextLogger(lvl)
}

// options maps the configuration onto Open, Build, Push and Pull.
func (a *app) options() []trident.Option {
	c := a.cfg
	// validated by config.Validate
	comp, _ := compress.ParseType(c.Tree.Compression)
	return []trident.Option{
		trident.WithLogger(a.logger()),
		trident.WithConcurrent(c.Tree.Concurrent),
		trident.WithMaxNodesInCache(c.Tree.MaxNodesInCache),
		trident.WithMaxElementsPerNode(c.Tree.MaxElementsPerNode),
		trident.WithNodeCompression(comp),
		trident.WithFlatTree(c.Tree.Flat),
		trident.WithCacheIdxCapacity(c.Cache.Capacity),
		trident.WithDiffTreeThreshold(c.Cache.DiffTreeThreshold),
		trident.WithSkipReversed(c.Build.SkipReversed),
		trident.WithAggregation(c.Build.Aggregate),
		trident.WithOldFormats(c.Build.OldFormats),
		trident.WithRowForLargeTables(c.Build.RowForLargeTables),
		trident.WithClusterColumnTerms(c.Build.ClusterColumnTerms),
		trident.WithMaxFileSize(c.Build.MaxFileSize),
		trident.WithSpill(c.Build.TmpDir, c.Build.OffloadThreshold),
		trident.WithMemoryLimit(c.Resources.MemoryLimit),
		trident.WithBackgroundWorkers(c.Resources.Workers),
		trident.WithIOLimit(c.Resources.IOLimit),
		trident.WithTransferConcurrency(c.Resources.TransferConcurrency),
	}
}

// open opens the configured knowledge base, read-only unless the command
// writes update layers.
func (a *app) open(readOnly bool) (*trident.KB, error) {
	opts := append(a.options(), trident.WithReadOnly(readOnly))
	kb, err := trident.Open(a.cfg.Dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.cfg.Dir, err)
	}
	return kb, nil
}
