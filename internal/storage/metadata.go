package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/series"
)

// writeSidecar persists the metadata sidecar next to a data file.
func writeSidecar(dataPath string, meta series.Metadata) error {
	path := SidecarPath(dataPath)
	if err := writeJSONAtomic(path, meta); err != nil {
		return wrapWriteError(path, err)
	}
	return nil
}

// readSidecar loads and validates the metadata sidecar for a data file.
func readSidecar(dataPath string) (series.Metadata, error) {
	var meta series.Metadata
	path := SidecarPath(dataPath)
	if err := checkRegularFile(path); err != nil {
		return meta, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, errs.Wrap(errs.KindStorage, "STORAGE_READ",
			fmt.Sprintf("failed to read sidecar %s", path), err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, errs.Wrap(errs.KindStorageFileCorrupted, "STORAGE_SIDECAR_CORRUPT",
			fmt.Sprintf("sidecar %s is not valid JSON", path), err).
			WithHelp("the metadata sidecar is damaged", "delete the data file and its sidecar, then re-download")
	}
	return meta, nil
}
