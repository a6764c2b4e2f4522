package main

import (
	"encoding/hex"
	"io"
	"strings"

	"codeberg.org/mutker/umctl/internal/display"
	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/meter"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a captured 130-byte frame",
	Long: `Decode a captured snapshot frame given as hex, either as an argument
or on stdin. Whitespace and colons between bytes are ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	var input string
	if len(args) == 1 {
		input = args[0]
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.New().Wrap(errors.ErrDecodeInput, err)
		}
		input = string(b)
	}

	frame, err := parseFrame(input)
	if err != nil {
		return err
	}

	display.Render(cmd.OutOrStdout(), meter.Decode(frame), nil, nil)

	return nil
}

// parseFrame turns a hex dump into a frame. Separators are stripped.
func parseFrame(input string) (meter.Frame, error) {
	var frame meter.Frame
	errFactory := errors.New()

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, input)

	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return frame, errFactory.Wrap(errors.ErrDecodeInput, err)
	}
	if len(b) != meter.FrameSize {
		return frame, errFactory.WithData(errors.ErrDecodeInput, struct {
			Want int
			Got  int
		}{meter.FrameSize, len(b)})
	}

	copy(frame[:], b)

	return frame, nil
}
