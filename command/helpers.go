// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/hashicorp/cli"
	"github.com/posener/complete"
	"github.com/ryanuber/columnize"
)

// NamedCommand is a interface to denote a command's name.
type NamedCommand interface {
	Name() string
}

func commandErrorText(cmd NamedCommand) string {
	return fmt.Sprintf("For additional help try 'edgemesh %s -help'", cmd.Name())
}

// mergeAutocompleteFlags is used to join multiple flag completion sets.
func mergeAutocompleteFlags(flags ...complete.Flags) complete.Flags {
	merged := make(map[string]complete.Predictor, len(flags))
	for _, f := range flags {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}

// formatList takes a set of strings and formats them into properly
// aligned output, replacing any blank fields with a placeholder
// for awk-ability.
func formatList(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	return columnize.Format(in, columnConf)
}

// formatKV takes a set of strings and formats them into properly
// aligned k = v pairs using the columnize library.
func formatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "
	return columnize.Format(in, columnConf)
}

// formatTime returns a timestamp in a human readable local form, or a
// placeholder when the value was never set.
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "<never>"
	}
	return t.Local().Format("2006-01-02 15:04:05 MST")
}

// formatAge renders how long ago t was, e.g. "14 seconds ago".
func formatAge(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "<never>"
	}
	return humanize.Time(*t)
}

// wrapAtLength wraps the given text at 80 characters, indenting
// continuation lines. Used for warning output.
func wrapAtLength(text string) string {
	var out []string
	for len(text) > 80 {
		cut := strings.LastIndex(text[:80], " ")
		if cut <= 0 {
			cut = 80
		}
		out = append(out, text[:cut])
		text = strings.TrimSpace(text[cut:])
	}
	out = append(out, text)
	return strings.Join(out, "\n")
}

func fmtFloat(f float64) string {
	return fmt.Sprintf("%.1f", f)
}

// uiErrorWriter is a io.Writer that wraps underlying ui.ErrorWriter().
// ui.ErrorWriter expects full lines as inputs and it emits its own line
// breaks, so input is scanned for individual lines and buffered until a
// newline arrives or the writer is closed.
type uiErrorWriter struct {
	ui  cli.Ui
	buf bytes.Buffer
}

func (w *uiErrorWriter) Write(data []byte) (int, error) {
	read := 0
	for len(data) != 0 {
		a, token, err := bufio.ScanLines(data, false)
		if err != nil {
			return read, err
		}

		if a == 0 {
			r, err := w.buf.Write(data)
			return read + r, err
		}

		w.ui.Error(w.buf.String() + string(token))
		data = data[a:]
		w.buf.Reset()
		read += a
	}

	return read, nil
}

func (w *uiErrorWriter) Close() error {
	// emit what's remaining
	if w.buf.Len() != 0 {
		w.ui.Error(w.buf.String())
		w.buf.Reset()
	}
	return nil
}
