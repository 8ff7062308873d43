package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

// Storage persists and loads price series. Both variants share the same
// directory layout and sidecar policy; only the data-file codec differs.
type Storage interface {
	Name() string
	Persist(s *series.Series, inst instrument.Instrument, p period.Period) error
	Load(inst instrument.Instrument, p period.Period) (*series.Series, error)
}

// Layout computes data-file paths under a base directory, keyed by the
// instrument shape. This is one of the two dispatch sites over the
// instrument union.
type Layout struct {
	Base string
	Ext  string
}

// DataPath returns the data-file path for an instrument and period.
func (l Layout) DataPath(inst instrument.Instrument, p period.Period) string {
	switch v := inst.(type) {
	case instrument.Future:
		file := fmt.Sprintf("%s_%d%02d00.%s", v.Symbol(), v.Year, int(v.Month()), l.Ext)
		return filepath.Join(l.Base, "futures", p.String(), v.Symbol(), file)
	case instrument.Forex:
		return filepath.Join(l.Base, "forex", p.String(), v.Symbol()+"."+l.Ext)
	default:
		return filepath.Join(l.Base, "stocks", p.String(), inst.Symbol()+"."+l.Ext)
	}
}

// SidecarPath returns the metadata path for a data file.
func SidecarPath(dataPath string) string { return dataPath + ".json" }

// NotFound reports whether err is the storage missing-file error.
func NotFound(err error) bool {
	return errs.KindOf(err) == errs.KindStorageFileNotFound
}

func notFoundErr(path string) error {
	return errs.New(errs.KindStorageFileNotFound, "STORAGE_NOT_FOUND",
		fmt.Sprintf("no stored data at %s", path))
}

// checkRegularFile verifies the path exists and is a regular file.
func checkRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return notFoundErr(path)
		}
		if os.IsPermission(err) {
			return errs.Wrap(errs.KindStoragePermissionDenied, "STORAGE_PERMISSION",
				fmt.Sprintf("cannot access %s", path), err)
		}
		return errs.Wrap(errs.KindStorage, "STORAGE_STAT", fmt.Sprintf("cannot stat %s", path), err)
	}
	if !info.Mode().IsRegular() {
		return notFoundErr(path)
	}
	return nil
}

// wrapWriteError classifies filesystem write failures.
func wrapWriteError(path string, err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsPermission(err):
		return errs.Wrap(errs.KindStoragePermissionDenied, "STORAGE_PERMISSION",
			fmt.Sprintf("permission denied writing %s", path), err).
			WithHelp("the output directory is not writable", "fix directory permissions")
	case isDiskFull(err):
		return errs.Wrap(errs.KindStorageDiskSpace, "STORAGE_DISK_FULL",
			fmt.Sprintf("no space left writing %s", path), err).
			WithHelp("the output volume is full", "free disk space and rerun")
	default:
		return errs.Wrap(errs.KindStorage, "STORAGE_WRITE",
			fmt.Sprintf("failed to write %s", path), err)
	}
}

func isDiskFull(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
