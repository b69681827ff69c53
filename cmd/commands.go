package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/ShoshinNikita/gameicons/pkg/misc"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
	"github.com/ShoshinNikita/gameicons/titles"
)

const shutdownTimeout = 10 * time.Second

func NewRootCommand() *cobra.Command {
	var (
		cfg        gameicons.Config
		configFile string
	)

	rootCmd := &cobra.Command{
		Use:           "gameicons",
		Short:         "Loads and serves game title icons",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := cfg.Finalize(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			rlog.SetLevel(cfg.LogLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the TOML config file, explicit flags take precedence")
	cfg.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCommand(&cfg),
		newTitlesCommand(&cfg),
		newFetchCommand(&cfg),
		newVersionCommand(&cfg),
	)

	return rootCmd
}

func newServeCommand(cfg *gameicons.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg.BuildInfo.Print()
			cfg.Print()

			return runApp(*cfg, func(app *App) error {
				termCtx, termCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer termCtxCancel()

				var failed bool
				startFinished := app.Start(func() {
					failed = true
					termCtxCancel()
				})
				<-termCtx.Done()

				rlog.Info("shutdown")
				err := shutdownApp(app)
				<-startFinished

				if failed {
					return fmt.Errorf("app has failed, see logs for more info")
				}
				return err
			})
		},
	}
}

func newFetchCommand(cfg *gameicons.Config) *cobra.Command {
	var (
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch <title-id>",
		Short: "Load the title icon and save it as a PNG image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := gameicons.ParseTitleID(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = id.String() + ".png"
			}

			return runApp(*cfg, func(app *App) error {
				defer shutdownApp(app)

				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()

				icon, err := app.FetchIcon(ctx, id)
				if err != nil {
					return err
				}

				buf := bytes.NewBuffer(nil)
				if err := png.Encode(buf, icon.Image()); err != nil {
					return fmt.Errorf("couldn't encode icon: %w", err)
				}
				if err := os.WriteFile(output, buf.Bytes(), 0600); err != nil {
					return fmt.Errorf("couldn't save icon: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%dx%d icon was saved to %q (%s)\n",
					icon.Width, icon.Height, output, misc.FormatFileSize(int64(buf.Len())),
				)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, default is <title-id>.png")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Max time to wait for the icon")

	return cmd
}

func newTitlesCommand(cfg *gameicons.Config) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "titles",
		Short: "List titles of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := titles.Load(cfg.TitlesFile)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"ID", "Name", "Source", "Size"})
			for _, t := range catalog.Search(search) {
				tw.AppendRow(table.Row{t.ID, t.Name, t.Path, sourceSize(t.Path)})
			}
			tw.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Show only titles with matching names")

	return cmd
}

func sourceSize(path string) string {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return "missing"
	case info.IsDir():
		return "dir"
	default:
		return misc.FormatFileSize(info.Size())
	}
}

func newVersionCommand(cfg *gameicons.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build info",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			cfg.BuildInfo.Print()
		},
	}
}

// runApp prepares the app and passes it to fn. The app is shut down if Prepare fails,
// otherwise fn is responsible for shutdown.
func runApp(cfg gameicons.Config, fn func(app *App) error) error {
	app := NewApp(cfg)
	if err := app.Prepare(); err != nil {
		shutdownApp(app)
		return err
	}
	return fn(app)
}

func shutdownApp(app *App) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := app.Shutdown(ctx)
	if err != nil {
		rlog.Error(err)
	}
	return err
}
