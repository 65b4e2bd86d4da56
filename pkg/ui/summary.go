package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rescp17/fileproc/internal/util"
	"github.com/rescp17/fileproc/pkg/client"
	"github.com/rescp17/fileproc/pkg/transfer"
)

const (
	labelWidth = 14
	pathWidth  = 48
)

func row(label, value string) string {
	return labelStyle.Render(util.PadRight(label, labelWidth)) + value
}

// Summary renders the outcome of a transfer for the terminal.
func Summary(req client.Request, res *client.Result) string {
	var b strings.Builder

	if res.Success {
		b.WriteString(successStyle.Render("✓ " + req.Operation + " completed"))
	} else {
		b.WriteString(errorStyle.Render("✗ " + req.Operation + " failed"))
	}
	b.WriteString("\n\n")

	rows := []string{
		row("Source", util.ShortenPath(req.Source, pathWidth)),
		row("Destination", util.ShortenPath(req.Destination, pathWidth)),
		row("Transfer", res.TransferID.String()),
		row("Input size", util.FormatSize(res.OriginalSize)),
	}
	if res.Success {
		rows = append(rows,
			row("Output size", util.FormatSize(res.ResultSize)),
			row("Change", fmt.Sprintf("%+.1f%%", -util.Reduction(res.OriginalSize, res.ResultSize))),
		)
		if res.MimeType != "" {
			rows = append(rows, row("Type", res.MimeType))
		}
	} else if res.Err != nil {
		rows = append(rows,
			row("Category", transfer.CategoryOf(res.Err).String()),
			row("Error", res.Err.Error()),
		)
	}
	rows = append(rows, row("Duration", res.Duration.Round(time.Millisecond).String()))

	b.WriteString(strings.Join(rows, "\n"))
	return boxStyle.Render(b.String())
}
