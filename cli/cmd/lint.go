package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/canmill/cli/render"
	"github.com/pithecene-io/canmill/dbc"
)

// LintCommand returns the lint command.
// Lint checks a DBC schema for layout defects that would make decode
// results wrong or ambiguous. Exits 1 when violations are found.
func LintCommand() *cli.Command {
	return &cli.Command{
		Name:  "lint",
		Usage: "Check a DBC schema for layout defects",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "dbc",
				Aliases:  []string{"d"},
				Usage:    "DBC schema file",
				Required: true,
			},
		),
		Action: lintAction,
	}
}

func lintAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for lint", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	file, err := dbc.Load(c.String("dbc"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot load DBC %s: %v", c.String("dbc"), err), exitInvalidInput)
	}

	violations := dbc.Validate(file.Layout)
	if violations == nil {
		// Stable JSON shape: an empty list, not null.
		violations = []dbc.Violation{}
	}

	if err := r.Render(violations); err != nil {
		return err
	}

	if len(violations) > 0 {
		return cli.Exit("", exitSessionError)
	}
	return nil
}
