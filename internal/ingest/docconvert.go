package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// OfficeDocConverter is the concrete ports.DocConverter that shells out to a
// headless LibreOffice/soffice binary, grounded directly on
// original_source/backend/ingest_workflow.py's _convert_office_to_pdf.
type OfficeDocConverter struct {
	// Binary overrides binary discovery for tests; empty means "look up
	// soffice then libreoffice on PATH".
	Binary string
}

func (c OfficeDocConverter) findBinary() (string, error) {
	if c.Binary != "" {
		return c.Binary, nil
	}
	for _, name := range []string{"soffice", "libreoffice"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("ingest: office document conversion unavailable: no LibreOffice binary found on PATH")
}

// ConvertToPDF writes data to a temp file, invokes the office binary
// headlessly with the given timeout, and returns the resulting PDF bytes.
func (c OfficeDocConverter) ConvertToPDF(ctx context.Context, data []byte, timeout time.Duration) ([]byte, error) {
	binary, err := c.findBinary()
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "studybuddy-office-*")
	if err != nil {
		return nil, fmt.Errorf("ingest: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "source.bin")
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("ingest: write source file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary,
		"--headless", "--nologo", "--nolockcheck", "--nodefault", "--nofirststartwizard",
		"--convert-to", "pdf", "--outdir", tmpDir, inputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("ingest: office conversion timed out after %s", timeout)
		}
		return nil, fmt.Errorf("ingest: office conversion failed: %w: %s", err, stderr.String())
	}

	outputPath := filepath.Join(tmpDir, "source.pdf")
	result, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: office conversion failed: output pdf was not produced: %w", err)
	}
	return result, nil
}
