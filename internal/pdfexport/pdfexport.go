// Package pdfexport renders HTML to PDF by shelling out to a converter
// found on PATH. It is a thin platform boundary: hosts without a
// converter get a descriptive error instead of a broken file.
package pdfexport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const exportTimeout = 2 * time.Minute

// converters lists the supported HTML-to-PDF tools in preference order.
// Each reads HTML on stdin and writes the PDF to the named output file.
var converters = []struct {
	binary string
	args   func(outPath string) []string
}{
	{"wkhtmltopdf", func(out string) []string { return []string{"--quiet", "-", out} }},
	{"weasyprint", func(out string) []string { return []string{"-", out} }},
}

// UnavailableError indicates no supported converter is installed.
type UnavailableError struct {
	Tried []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("pdf export unavailable: none of %s found on PATH",
		strings.Join(e.Tried, ", "))
}

// IsUnavailable reports whether err indicates the host has no converter.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

func findConverter() (string, func(string) []string, error) {
	tried := make([]string, 0, len(converters))
	for _, c := range converters {
		if path, err := exec.LookPath(c.binary); err == nil {
			return path, c.args, nil
		}
		tried = append(tried, c.binary)
	}
	return "", nil, &UnavailableError{Tried: tried}
}

// Available reports whether a converter exists on this host.
func Available() bool {
	_, _, err := findConverter()
	return err == nil
}

// Export renders the HTML document to a PDF file at outPath.
func Export(ctx context.Context, html string, outPath string) error {
	binary, args, err := findConverter()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args(outPath)...)
	cmd.Stdin = strings.NewReader(html)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("converting to pdf: %s: %w", msg, err)
		}
		return fmt.Errorf("converting to pdf: %w", err)
	}
	return nil
}
