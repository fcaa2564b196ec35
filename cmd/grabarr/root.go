package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/controllers"
	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/parser"
	"github.com/amaumene/grabarr/internal/quality"
	"github.com/amaumene/grabarr/internal/scheduler"
	"github.com/amaumene/grabarr/internal/utils"
)

type rootOptions struct {
	configDir string
}

// load reads the configuration and builds the logger it describes
func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configDir != "" {
		cfg, err = config.LoadFrom(o.configDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, utils.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "grabarr",
		Short:         "Release decision and acquisition pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "configuration directory (default $CONFIG_DIR or ~/.config/grabarr)")

	cmd.AddCommand(
		newServeCmd(opts),
		newParseCmd(),
		newScoreCmd(opts),
		newSearchCmd(opts),
		newRenameCmd(opts),
		newRemoveCmd(opts),
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParseCmd() *cobra.Command {
	var mediaType string

	cmd := &cobra.Command{
		Use:   "parse <title>",
		Short: "Parse a release title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := models.ParseMediaType(mediaType)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), parser.Parse(args[0], mt))
		},
	}
	cmd.Flags().StringVarP(&mediaType, "type", "t", string(models.MediaTypeTV), "media type (tv, movie, music, book)")
	return cmd
}

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var (
		mediaType string
		profile   string
	)

	cmd := &cobra.Command{
		Use:   "score <title>...",
		Short: "Score release titles against a quality profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := models.ParseMediaType(mediaType)
			if err != nil {
				return err
			}
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			p, ok := cfg.ProfileFor(mt, profile)
			if !ok {
				return fmt.Errorf("unknown quality profile %q", profile)
			}

			candidates := make([]models.Candidate, 0, len(args))
			for i, title := range args {
				candidates = append(candidates, models.Candidate{Title: title, GUID: strconv.Itoa(i)})
			}
			return writeJSON(cmd.OutOrStdout(), quality.ScoreAndRankReleases(candidates, mt, p, cfg.CustomFormats))
		},
	}
	cmd.Flags().StringVarP(&mediaType, "type", "t", string(models.MediaTypeTV), "media type (tv, movie, music, book)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "quality profile (default: the media type's profile)")
	return cmd
}

// withApp builds the application graph for a one-shot command
func withApp(opts *rootOptions, fn func(app *App, logger *logrus.Logger) error) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	app, cleanup, err := InitializeApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()
	return fn(app, logger)
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Refresh the queue and search for every wanted item once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(app *App, _ *logrus.Logger) error {
				if err := app.Scheduler.RunTask(scheduler.TaskRefreshQueue); err != nil {
					return err
				}
				return app.Scheduler.RunTask(scheduler.TaskWantedSearch)
			})
		},
	}
}

func newRenameCmd(opts *rootOptions) *cobra.Command {
	var mediaType string

	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Move library files to their naming template paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mt, err := models.ParseMediaType(mediaType)
			if err != nil {
				return err
			}
			return withApp(opts, func(app *App, logger *logrus.Logger) error {
				renamed, err := app.Importer.RenameFiles(cmd.Context(), mt)
				if err != nil {
					return err
				}
				logger.WithFields(logrus.Fields{
					"media_type": mt,
					"renamed":    renamed,
				}).Info("Rename finished")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&mediaType, "type", "t", string(models.MediaTypeTV), "media type (tv, movie, music, book)")
	return cmd
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	var deleteFiles bool

	cmd := &cobra.Command{
		Use:   "remove <tv|movie|music|book> <id>",
		Short: "Remove an episode, movie, track or book from the library",
		Long: "Remove a library entity, cancelling its downloads. Parents left without " +
			"children (season, series, album, artist, author) are removed too.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := models.ParseMediaType(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[1], err)
			}

			return withApp(opts, func(app *App, _ *logrus.Logger) error {
				result, err := remove(cmd, app.Cleanup, mt, uint(id), deleteFiles)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "delete library files and client data")
	return cmd
}

func remove(cmd *cobra.Command, cleanup *controllers.CleanupController, mt models.MediaType, id uint, deleteFiles bool) (*controllers.RemovalResult, error) {
	ctx := cmd.Context()
	switch mt {
	case models.MediaTypeTV:
		return cleanup.RemoveEpisode(ctx, id, deleteFiles)
	case models.MediaTypeMovie:
		return cleanup.RemoveMovie(ctx, id, deleteFiles)
	case models.MediaTypeMusic:
		return cleanup.RemoveTrack(ctx, id, deleteFiles)
	default:
		return cleanup.RemoveBook(ctx, id, deleteFiles)
	}
}
