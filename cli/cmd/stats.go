package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/canmill/cli/render"
	"github.com/pithecene-io/canmill/runtime"
)

// StatsCommand returns the stats command.
// Stats renders a session report written by decode --report, in any of
// the output formats or as the interactive TUI view.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Render a previously written session report",
		Flags: append(TUIReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "report",
				Aliases:  []string{"r"},
				Usage:    "Session report JSON file",
				Required: true,
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := loadSessionReport(c.String("report"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_session", report)
	}

	return r.Render(report)
}

// loadSessionReport reads a session report JSON file.
func loadSessionReport(path string) (*runtime.SessionReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read report %s: %v", path, err)
	}
	var report runtime.SessionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("malformed report %s: %v", path, err)
	}
	return &report, nil
}
