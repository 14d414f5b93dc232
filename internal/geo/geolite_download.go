package geo

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	geoLiteEdition     = "GeoLite2-City"
	downloadUserAgent  = "trafficwatch-geolite/1.0"
)

var (
	ErrNoLicenseKey = errors.New("geo: maxmind license key is not configured")

	downloadGroup  singleflight.Group
	downloadClient = &http.Client{Timeout: 2 * time.Minute}
	downloadURL    = maxMindDownloadURL
)

// DownloadGeoLite fetches the GeoLite2-City archive and installs the mmdb
// file at destPath. Concurrent calls share one download.
func DownloadGeoLite(ctx context.Context, licenseKey, destPath string) error {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return ErrNoLicenseKey
	}

	_, err, _ := downloadGroup.Do(destPath, func() (any, error) {
		return nil, downloadEdition(ctx, licenseKey, destPath)
	})
	if err != nil {
		return err
	}

	log.Info("GeoLite database downloaded", "path", destPath)
	return nil
}

func downloadEdition(ctx context.Context, licenseKey, destPath string) error {
	target := fmt.Sprintf("%s?edition_id=%s&license_key=%s&suffix=tar.gz", downloadURL, geoLiteEdition, licenseKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("geo: create download request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := downloadClient.Do(req)
	if err != nil {
		return fmt.Errorf("geo: download %s: %w", geoLiteEdition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("geo: download %s: unexpected status %d: %s", geoLiteEdition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return extractMMDB(resp.Body, geoLiteEdition+".mmdb", destPath)
}

func extractMMDB(archive io.Reader, name, destPath string) error {
	gzipReader, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("geo: open gzip: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("geo: read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != name {
			continue
		}
		return replaceFile(destPath, tarReader)
	}

	return fmt.Errorf("geo: %s not found in archive", name)
}

// replaceFile writes through a temp file so readers never see a partial database.
func replaceFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("geo: create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("geo: create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("geo: copy data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("geo: sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("geo: close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("geo: replace file: %w", err)
	}
	return nil
}

// Refresh downloads a fresh copy of the database over the provider's file
// and reloads it.
func (p *GeoLiteProvider) Refresh(ctx context.Context, licenseKey string) error {
	if p.path == "" {
		return errors.New("geo: geolite provider has no file path")
	}
	if err := DownloadGeoLite(ctx, licenseKey, p.path); err != nil {
		return err
	}
	return p.Reload()
}
