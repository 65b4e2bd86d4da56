package processor

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Ghostscript compresses PDF documents with the gs binary at Path.
type Ghostscript struct {
	Path string
	// Settings is the -dPDFSETTINGS preset; "/ebook" when empty.
	Settings string
}

func (g Ghostscript) Process(ctx context.Context, in Input) (Output, error) {
	if in.MimeType != "application/pdf" {
		return Output{}, invalidInput("%s is not a PDF document (%s)", in.Name, in.MimeType)
	}
	bin, err := exec.LookPath(g.Path)
	if err != nil {
		return Output{}, fmt.Errorf("ghostscript not available: %w", err)
	}
	settings := g.Settings
	if settings == "" {
		settings = "/ebook"
	}

	out := filepath.Join(in.OutDir, "compressed_"+in.Name)
	cmd := exec.CommandContext(ctx, bin,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS="+settings,
		"-dNOPAUSE", "-dQUIET", "-dBATCH", "-dSAFER",
		"-sOutputFile="+out,
		in.Path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			return Output{}, fmt.Errorf("ghostscript failed: %w", err)
		}
		return Output{}, fmt.Errorf("ghostscript failed: %w: %s", err, msg)
	}
	return Output{Path: out}, nil
}
