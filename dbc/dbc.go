// Package dbc loads DBC schema files into read-only layout tables.
//
// Parsing is delegated to the can-go DBC parser; this package walks the
// parsed definitions into the engine's layout model, applying value
// labels and float type overrides, and validates the result. Messages
// carrying a multiplexer switch are not supported and are skipped, so
// their frames decode as unknown traffic.
package dbc

import (
	"fmt"
	"os"
	"path/filepath"

	cdbc "go.einride.tech/can/pkg/dbc"

	"github.com/pithecene-io/canmill/types"
)

// independentSignalsID is the pseudo message some tools emit to hold
// orphan signals. It never appears on the bus.
const independentSignalsID = 0xC0000000

// File is a loaded DBC schema.
type File struct {
	// Version is the VERSION string, often empty.
	Version string
	// Layout is the decodable message table.
	Layout *types.Layout
	// Multiplexed names the messages skipped for carrying a
	// multiplexer switch.
	Multiplexed []string
}

// Load reads and parses a DBC file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dbc: %w", err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse parses DBC text into a layout table. The name is used in parse
// error positions only.
func Parse(name string, data []byte) (*File, error) {
	parser := cdbc.NewParser(name, data)
	if err := parser.Parse(); err != nil {
		return nil, fmt.Errorf("parse dbc: %w", err)
	}

	out := &File{}
	var defs []*types.MessageDef
	// Signal index for the label and value-type passes
	signals := make(map[uint32]map[string]*types.SignalDef)

	for _, def := range parser.File().Defs {
		switch d := def.(type) {
		case *cdbc.VersionDef:
			out.Version = d.Version

		case *cdbc.MessageDef:
			if uint32(d.MessageID) == independentSignalsID {
				continue
			}
			msg, multiplexed := convertMessage(d)
			if multiplexed {
				out.Multiplexed = append(out.Multiplexed, msg.Name)
				continue
			}
			defs = append(defs, msg)
			index := make(map[string]*types.SignalDef, len(msg.Signals))
			for i := range msg.Signals {
				index[msg.Signals[i].Name] = &msg.Signals[i]
			}
			signals[msg.ID] = index

		case *cdbc.ValueDescriptionsDef:
			if d.SignalName == "" {
				continue
			}
			sig, ok := lookupSignal(signals, uint32(d.MessageID), string(d.SignalName))
			if !ok {
				continue
			}
			if sig.Labels == nil {
				sig.Labels = make(map[int64]string, len(d.ValueDescriptions))
			}
			for _, vd := range d.ValueDescriptions {
				sig.Labels[int64(vd.Value)] = vd.Description
			}

		case *cdbc.SignalValueTypeDef:
			sig, ok := lookupSignal(signals, uint32(d.MessageID), string(d.SignalName))
			if !ok {
				continue
			}
			switch d.SignalValueType {
			case cdbc.SignalValueTypeFloat32, cdbc.SignalValueTypeFloat64:
				sig.Float = true
			}
		}
	}

	layout, err := types.NewLayout(defs)
	if err != nil {
		return nil, fmt.Errorf("build layout: %w", err)
	}
	out.Layout = layout

	return out, nil
}

// convertMessage maps one parsed message into the layout model.
// The second return is true when the message carries a multiplexer.
func convertMessage(d *cdbc.MessageDef) (*types.MessageDef, bool) {
	id := uint32(d.MessageID)
	extended := id&types.ExtendedFlag != 0
	if extended {
		id &= types.MaxExtendedID
	}

	sender := string(d.Transmitter)
	if sender == "Vector__XXX" {
		sender = ""
	}

	msg := &types.MessageDef{
		ID:       id,
		Name:     string(d.Name),
		Length:   uint(d.Size),
		Sender:   sender,
		Extended: extended,
		Signals:  make([]types.SignalDef, 0, len(d.Signals)),
	}

	multiplexed := false
	for _, s := range d.Signals {
		if s.IsMultiplexerSwitch || s.IsMultiplexed {
			multiplexed = true
			continue
		}
		order := types.OrderLittleEndian
		if s.IsBigEndian {
			order = types.OrderBigEndian
		}
		msg.Signals = append(msg.Signals, types.SignalDef{
			Name:      string(s.Name),
			StartBit:  uint(s.StartBit),
			BitLength: uint(s.Size),
			ByteOrder: order,
			Signed:    s.IsSigned,
			Scale:     s.Factor,
			Offset:    s.Offset,
			Min:       s.Minimum,
			Max:       s.Maximum,
			Unit:      s.Unit,
		})
	}

	return msg, multiplexed
}

func lookupSignal(index map[uint32]map[string]*types.SignalDef, rawID uint32, name string) (*types.SignalDef, bool) {
	id := rawID
	if id&types.ExtendedFlag != 0 {
		id &= types.MaxExtendedID
	}
	sigs, ok := index[id]
	if !ok {
		return nil, false
	}
	sig, ok := sigs[name]
	return sig, ok
}
