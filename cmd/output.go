package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// writeScreenshot stores a PNG capture, re-encoding it when path asks for
// another format.
func writeScreenshot(path string, png []byte) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("unsupported screenshot format for %s: %w", filepath.Base(path), err)
	}
	if format == imaging.PNG {
		return os.WriteFile(path, png, 0o644)
	}

	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return fmt.Errorf("failed to decode capture: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// writeHTML writes doc to path, or to stdout when path is "-".
func writeHTML(stdout io.Writer, path, doc string) error {
	if path == "-" {
		_, err := io.WriteString(stdout, doc)
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML: %w", err)
	}
	return nil
}
