package dataset

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"ferrovia/internal/domain"
)

// Loader reads a dataset file from a local path or an http(s) URL. Files
// may be gzip-compressed.
type Loader struct {
	location string
	client   *http.Client
	logger   *slog.Logger
}

func NewLoader(location string, logger *slog.Logger) *Loader {
	return &Loader{
		location: location,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger.With("component", "dataset_loader"),
	}
}

func (l *Loader) Location() string { return l.location }

// Load returns the decoded dataset and the sha256 fingerprint of the raw
// bytes.
func (l *Loader) Load(ctx context.Context) (*domain.Dataset, string, error) {
	start := time.Now()

	data, err := l.read(ctx)
	if err != nil {
		return nil, "", err
	}
	fingerprint := Fingerprint(data)

	ds, err := Decode(data)
	if err != nil {
		return nil, fingerprint, err
	}

	stats := ds.Stats()
	l.logger.Info("dataset loaded",
		"location", l.location,
		"size_bytes", len(data),
		"sha256", fingerprint,
		"stations", stats.Stations,
		"runs", stats.Runs,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, fingerprint, nil
}

func (l *Loader) read(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(l.location, "http://") && !strings.HasPrefix(l.location, "https://") {
		data, err := os.ReadFile(l.location)
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Ferrovia/1.0")

	l.logger.Debug("sending HTTP request", "method", req.Method, "url", req.URL.String())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download dataset: %w", err)
	}
	defer resp.Body.Close()

	l.logger.Debug("received HTTP response",
		"status_code", resp.StatusCode,
		"content_length", resp.ContentLength,
		"content_type", resp.Header.Get("Content-Type"),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// Decode parses a JSON dataset, transparently gunzipping it.
func Decode(data []byte) (*domain.Dataset, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("decompress dataset: %w", err)
		}
	}

	var ds domain.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

// Encode writes ds as JSON, gzip-compressed when compress is set.
func Encode(w io.Writer, ds *domain.Dataset, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(ds)
	}
	zw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(ds); err != nil {
		zw.Close()
		return fmt.Errorf("encode dataset: %w", err)
	}
	return zw.Close()
}

func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
