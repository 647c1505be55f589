package utils

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultChunkSize       = 256 * 1024       // 256KB read/write buffer per segment
	DefaultThreshold       = 10 * 1024 * 1024 // 10MB minimum size for segmentation
	DefaultSegments        = 4
	MinSegments            = 2
	MaxSegments            = 16
	DefaultWorkers         = 5
	MaxWorkers             = 20
	MaxTotalConnections    = 64
	DefaultProbeTimeout    = 15 * time.Second
	DefaultTransferTimeout = 30 * time.Second
	DefaultKATimeout       = 90 * time.Second
	SocketBufferSize       = 8 * 1024 * 1024
	TempDirName            = ".parcel-temp"
	ToolUserAgent          = "parcel/1.0"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNetwork      = errors.New("network error")
	ErrIO           = errors.New("io error")

	// Range request refused although the probe advertised support.
	ErrUnsupportedOperation = fmt.Errorf("%w: unsupported operation", ErrNetwork)
	ErrAlreadyExists        = fmt.Errorf("%w: destination already exists", ErrIO)
)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0",
	"curl/7.88.1",
	"Wget/1.21.4",
}
