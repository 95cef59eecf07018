package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/config"
	"github.com/JakeFAU/analytica/internal/pipeline"
	"github.com/JakeFAU/analytica/internal/social"
)

// collectRunner runs one collection.
type collectRunner interface {
	Run(ctx context.Context, req social.Request, dims []classifier.Dimension) (pipeline.Result, error)
}

// newCollectRunner builds the full pipeline. Tests replace it with a fake.
var newCollectRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (collectRunner, func() error, error) {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return a.Pipeline(), func() error { return a.Close(context.Background()) }, nil
}

type collectOptions struct {
	profile    string
	hashtag    string
	limit      int
	recency    string
	dimensions []string
	output     string
}

// newCollectCmd creates the 'collect' subcommand.
func newCollectCmd() *cobra.Command {
	opts := &collectOptions{}
	cmd := &cobra.Command{
		Use:   "collect (--profile NAME | --hashtag TAG)",
		Short: "Collect and label posts from one profile or hashtag",
		Long: `Logs in (or reuses the live session), scrolls the profile or hashtag feed
until the limit is reached or the feed stops growing, then labels and stores
every post. Running the same collection twice updates posts in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.profile, "profile", "", "account handle to collect, with or without @")
	f.StringVar(&opts.hashtag, "hashtag", "", "hashtag to collect, with or without #")
	f.IntVar(&opts.limit, "limit", 0, "maximum posts to collect (default collector.default_limit)")
	f.StringVar(&opts.recency, "recency", string(social.RecencyLatest), "hashtag ordering: latest or top")
	f.StringSliceVar(&opts.dimensions, "dimensions", nil,
		"dimensions to label: sentiment, toxicity, emotion or combined (default all)")
	f.StringVarP(&opts.output, "output", "o", outputTable, "output format: table or json")
	return cmd
}

func (o *collectOptions) request(defaultLimit int) (social.Request, error) {
	req := social.Request{Limit: o.limit, Recency: social.Recency(o.recency)}
	switch {
	case o.profile != "" && o.hashtag != "":
		return social.Request{}, fmt.Errorf("%w: --profile and --hashtag are mutually exclusive", social.ErrInvalidInput)
	case o.profile != "":
		req.Kind, req.Target = social.TargetProfile, o.profile
	case o.hashtag != "":
		req.Kind, req.Target = social.TargetHashtag, o.hashtag
	default:
		return social.Request{}, fmt.Errorf("%w: one of --profile or --hashtag is required", social.ErrInvalidInput)
	}
	if o.limit < 0 {
		return social.Request{}, fmt.Errorf("%w: --limit must be > 0", social.ErrInvalidInput)
	}
	req = req.WithDefaults(defaultLimit)
	if err := req.Validate(); err != nil {
		return social.Request{}, err
	}
	return req, nil
}

func runCollect(cmd *cobra.Command, opts *collectOptions) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	req, err := opts.request(rt.cfg.Collector.DefaultLimit)
	if err != nil {
		return usageError(cmd, err)
	}
	dims, err := parseDimensionFlag(opts.dimensions)
	if err != nil {
		return usageError(cmd, err)
	}
	if err := checkOutput(opts.output); err != nil {
		return usageError(cmd, err)
	}

	runner, closeFn, err := newCollectRunner(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			rt.logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()

	res, err := runner.Run(cmd.Context(), req, dims)
	if err != nil {
		return fmt.Errorf("collect %s: %w", req, err)
	}
	return renderResult(cmd.OutOrStdout(), opts.output, res)
}

// parseDimensionFlag returns every dimension when the flag was not given.
func parseDimensionFlag(raw []string) ([]classifier.Dimension, error) {
	if len(raw) == 0 {
		return classifier.All(), nil
	}
	return classifier.ParseDimensions(raw)
}
