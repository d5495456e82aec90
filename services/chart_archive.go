package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/utils"
)

// ErrChartNotFound is returned when a chart was never archived
var ErrChartNotFound = errors.New("chart not found")

// ChartLocation says where an archived chart can be read from.
// Path is set for charts on local disk, URL for charts in S3.
type ChartLocation struct {
	Path string
	URL  string
}

// ChartArchive keeps rendered charts so replies can link to them
type ChartArchive interface {
	// Store saves png under filename and returns a URL for it
	Store(ctx context.Context, filename string, png []byte) (string, error)
	Locate(ctx context.Context, filename string) (*ChartLocation, error)
}

const chartKeyPrefix = "charts/"

var chartArchiveInstance ChartArchive

// InitChartArchive picks S3 when a bucket is configured and the chart directory otherwise
func InitChartArchive(cfg *config.Config) (ChartArchive, error) {
	if cfg.ArchiveToS3() {
		s3Service, err := InitS3Service(cfg)
		if err != nil {
			return nil, err
		}
		chartArchiveInstance = NewS3ChartArchive(s3Service)
	} else {
		chartArchiveInstance = NewLocalChartArchive(cfg.ChartDir)
	}
	return chartArchiveInstance, nil
}

// GetChartArchive returns the initialized chart archive
func GetChartArchive() ChartArchive {
	return chartArchiveInstance
}

// SetChartArchive sets the chart archive (primarily for testing)
func SetChartArchive(archive ChartArchive) {
	chartArchiveInstance = archive
}

// LocalChartArchive writes charts to a directory served by the API
type LocalChartArchive struct {
	dir string
}

// NewLocalChartArchive creates an archive rooted at dir
func NewLocalChartArchive(dir string) *LocalChartArchive {
	return &LocalChartArchive{dir: dir}
}

// Store implements ChartArchive
func (a *LocalChartArchive) Store(ctx context.Context, filename string, png []byte) (string, error) {
	if err := utils.ValidatePNG(png); err != nil {
		return "", err
	}
	if _, err := utils.SaveChart(a.dir, filename, png); err != nil {
		return "", err
	}
	return utils.GetChartURL(filename), nil
}

// Locate implements ChartArchive
func (a *LocalChartArchive) Locate(ctx context.Context, filename string) (*ChartLocation, error) {
	if err := utils.ValidateChartFilename(filename); err != nil {
		return nil, err
	}
	path := filepath.Join(a.dir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChartNotFound
		}
		return nil, fmt.Errorf("failed to stat chart: %w", err)
	}
	return &ChartLocation{Path: path}, nil
}

// S3ChartArchive uploads charts to a bucket and hands out presigned links
type S3ChartArchive struct {
	s3 S3Interface
}

// NewS3ChartArchive creates an archive on top of an S3 service
func NewS3ChartArchive(s3Service S3Interface) *S3ChartArchive {
	return &S3ChartArchive{s3: s3Service}
}

// Store implements ChartArchive
func (a *S3ChartArchive) Store(ctx context.Context, filename string, png []byte) (string, error) {
	if err := utils.ValidateChartFilename(filename); err != nil {
		return "", err
	}
	if err := utils.ValidatePNG(png); err != nil {
		return "", err
	}
	key := chartKeyPrefix + filename
	if err := a.s3.UploadObject(ctx, key, png, "image/png"); err != nil {
		return "", err
	}
	return a.s3.GetPresignedURL(ctx, key)
}

// Locate implements ChartArchive
func (a *S3ChartArchive) Locate(ctx context.Context, filename string) (*ChartLocation, error) {
	if err := utils.ValidateChartFilename(filename); err != nil {
		return nil, err
	}
	key := chartKeyPrefix + filename
	exists, err := a.s3.ObjectExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrChartNotFound
	}
	url, err := a.s3.GetPresignedURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ChartLocation{URL: url}, nil
}
