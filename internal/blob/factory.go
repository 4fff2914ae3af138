// Package blob is the entry point for pictogram storage. Callers depend on
// Store and pick a driver through Open or one of the constructors.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"menuboard/internal/blob/core"
	"menuboard/internal/infra/blob/fs"
	"menuboard/internal/infra/blob/memory"
	infraS3 "menuboard/internal/infra/blob/s3"
)

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrInvalidKey  = core.ErrInvalidKey
)

// Environment variables read by Open.
const (
	EnvDriver   = "MENUBOARD_BLOB_DRIVER"
	EnvFSRoot   = "MENUBOARD_BLOB_FS_ROOT"
	EnvFSURL    = "MENUBOARD_BLOB_FS_BASE_URL"
	EnvS3Bucket = infraS3.EnvBucket
)

// Open selects a driver from the environment:
//
//	MENUBOARD_BLOB_DRIVER       fs|s3|memory (default fs)
//	MENUBOARD_BLOB_FS_ROOT      directory for the fs driver (default ./pictograms)
//	MENUBOARD_BLOB_FS_BASE_URL  URL prefix reported for fs objects
//
// The S3 driver reads the MENUBOARD_BLOB_S3_* variables.
func Open(ctx context.Context) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(os.Getenv(EnvDriver))))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot), os.Getenv(EnvFSURL))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// NewFilesystem returns a Store rooted at dir. baseURL prefixes the URLs of
// stored objects; empty selects a local placeholder host.
func NewFilesystem(dir, baseURL string) (Store, error) {
	return fs.New(dir, fs.WithBaseURL(baseURL))
}

// NewMemory returns a process local Store.
func NewMemory() Store { return memory.New() }

// NewS3 connects to the bucket named in cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}
