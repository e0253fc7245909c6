package common

import "fmt"

var (
	ErrCatalogNotInitialized = fmt.Errorf("catalog is not initialized, run the refresh step first")
	ErrDatasetNotFound       = fmt.Errorf("dataset not found")
	ErrUnsupportedCatalog    = fmt.Errorf("unsupported catalog url scheme")
	ErrSyncAlreadyRunning    = fmt.Errorf("sync process has already started")
)
