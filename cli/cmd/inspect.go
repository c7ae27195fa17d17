package cmd

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/canmill/cli/render"
	"github.com/pithecene-io/canmill/dbc"
	"github.com/pithecene-io/canmill/types"
)

// MessageSummary is one row of the message list.
type MessageSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Length  uint   `json:"length"`
	Signals int    `json:"signals"`
	Sender  string `json:"sender,omitempty"`
}

// MessageDetail is the deep view of one message layout.
type MessageDetail struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Length   uint           `json:"length"`
	Sender   string         `json:"sender,omitempty"`
	Extended bool           `json:"extended"`
	Signals  []SignalDetail `json:"signals"`
}

// SignalDetail is one row of a message's signal table.
type SignalDetail struct {
	Name     string  `json:"name"`
	StartBit uint    `json:"start_bit"`
	Length   uint    `json:"length"`
	Order    string  `json:"order"`
	Kind     string  `json:"kind"`
	Scale    float64 `json:"scale"`
	Offset   float64 `json:"offset"`
	Unit     string  `json:"unit,omitempty"`
	Labels   int     `json:"labels"`
}

// InspectCommand returns the inspect command.
// Without --id it lists every message in the schema; with --id it shows
// the full signal layout of one message.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect message layouts in a DBC schema",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "dbc",
				Aliases:  []string{"d"},
				Usage:    "DBC schema file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Message identifier (hex 0x2B4 or decimal)",
			},
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for inspect", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	file, err := dbc.Load(c.String("dbc"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot load DBC %s: %v", c.String("dbc"), err), exitInvalidInput)
	}

	if !c.IsSet("id") {
		return r.Render(messageList(file.Layout))
	}

	id, err := parseMessageID(c.String("id"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	def, ok := file.Layout.Lookup(id)
	if !ok {
		return cli.Exit(fmt.Sprintf("message 0x%X not found in %s", id, c.String("dbc")), exitInvalidInput)
	}
	return r.Render(messageDetail(def))
}

// parseMessageID parses a message identifier, accepting 0x-prefixed hex
// and plain decimal.
func parseMessageID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --id %q (expected hex like 0x2B4 or decimal)", s)
	}
	return uint32(id), nil
}

func messageList(layout *types.Layout) []MessageSummary {
	defs := layout.Messages()
	list := make([]MessageSummary, 0, len(defs))
	for _, def := range defs {
		list = append(list, MessageSummary{
			ID:      fmt.Sprintf("0x%X", def.ID),
			Name:    def.Name,
			Length:  def.Length,
			Signals: len(def.Signals),
			Sender:  def.Sender,
		})
	}
	return list
}

func messageDetail(def *types.MessageDef) MessageDetail {
	detail := MessageDetail{
		ID:       fmt.Sprintf("0x%X", def.ID),
		Name:     def.Name,
		Length:   def.Length,
		Sender:   def.Sender,
		Extended: def.Extended,
		Signals:  make([]SignalDetail, 0, len(def.Signals)),
	}
	for _, sig := range def.Signals {
		detail.Signals = append(detail.Signals, SignalDetail{
			Name:     sig.Name,
			StartBit: sig.StartBit,
			Length:   sig.BitLength,
			Order:    string(sig.ByteOrder),
			Kind:     signalKind(sig),
			Scale:    sig.Scale,
			Offset:   sig.Offset,
			Unit:     sig.Unit,
			Labels:   len(sig.Labels),
		})
	}
	return detail
}

func signalKind(sig types.SignalDef) string {
	switch {
	case sig.Float:
		return "float"
	case sig.Signed:
		return "signed"
	default:
		return "unsigned"
	}
}
