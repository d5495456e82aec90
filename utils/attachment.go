package utils

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const (
	// MaxAttachmentSize is Postmark's 10MB limit on a message's attachments
	MaxAttachmentSize = 10 * 1024 * 1024
	// ChartExtension is the only format charts are rendered in
	ChartExtension = ".png"
)

var (
	chartNamePattern = regexp.MustCompile(`^img-\d{8}-\d{6}-[A-Za-z0-9]+\.png$`)
	pngSignature     = []byte("\x89PNG\r\n\x1a\n")
)

// AttachmentError represents an attachment validation error
type AttachmentError struct {
	Code    string
	Message string
}

func (e *AttachmentError) Error() string {
	return e.Message
}

// ChartFilename names a chart rendered at t, e.g. img-20240601-120000-ab12cd34.png
func ChartFilename(t time.Time, id string) string {
	return fmt.Sprintf("img-%s-%s%s", t.UTC().Format("20060102-150405"), id, ChartExtension)
}

// ValidateChartFilename rejects anything that is not a name produced by ChartFilename
func ValidateChartFilename(filename string) error {
	if !chartNamePattern.MatchString(filename) {
		return &AttachmentError{
			Code:    "INVALID_FILENAME",
			Message: fmt.Sprintf("%q is not a chart file name", filename),
		}
	}
	return nil
}

// ValidatePNG checks the size and signature of an encoded chart
func ValidatePNG(data []byte) error {
	if len(data) > MaxAttachmentSize {
		return &AttachmentError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxAttachmentSize/(1024*1024)),
		}
	}
	if !bytes.HasPrefix(data, pngSignature) {
		return &AttachmentError{
			Code:    "INVALID_FILE_FORMAT",
			Message: fmt.Sprintf("Only %s files are allowed", ChartExtension),
		}
	}
	return nil
}

// ValidateAttachmentSizes checks that attachments of the given sizes fit in one message
func ValidateAttachmentSizes(sizes ...int) error {
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total > MaxAttachmentSize {
		return &AttachmentError{
			Code:    "ATTACHMENTS_TOO_LARGE",
			Message: fmt.Sprintf("Attachments exceed maximum allowed size of %d MB", MaxAttachmentSize/(1024*1024)),
		}
	}
	return nil
}

// SaveChart writes data to dir/filename and returns the full path
func SaveChart(dir, filename string, data []byte) (string, error) {
	if err := ValidateChartFilename(filename); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create chart directory: %w", err)
	}

	fullPath := filepath.Join(dir, filename)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save chart: %w", err)
	}
	return fullPath, nil
}

// GetChartURL returns the URL path for fetching an archived chart
func GetChartURL(filename string) string {
	if filename == "" {
		return ""
	}
	return fmt.Sprintf("/api/v1/charts/%s", filename)
}
