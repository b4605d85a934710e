// Package fetcher downloads remote import sources (GeoJSON files and zipped
// shapefiles) over HTTP(S) or FTP so the dataset loaders can read them from
// local disk.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Options configures the fetchers returned by ForURL.
type Options struct {
	UserAgent string
	Timeout   time.Duration
}

// IsRemote reports whether src is an http, https or ftp URL.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return u.Host != ""
	}
	return false
}

// ForURL picks a fetcher by URL scheme.
func ForURL(rawURL string, opts Options) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPFetcher(HTTPOptions{UserAgent: opts.UserAgent, Timeout: opts.Timeout}), nil
	case "ftp":
		return NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Localize returns a local file path for src. Local paths are returned as is.
// Remote sources are downloaded into dir; a .zip download is extracted and
// the first entry ending in ext is returned.
func Localize(ctx context.Context, src, ext, dir string, opts Options) (string, error) {
	if !IsRemote(src) {
		return src, nil
	}

	f, err := ForURL(src, opts)
	if err != nil {
		return "", err
	}

	u, _ := url.Parse(src)
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "download" + ext
	}
	dest := filepath.Join(dir, name)

	n, err := f.DownloadToFile(ctx, src, dest)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: download %s", src)
	}
	zap.L().Info("fetcher: downloaded source",
		zap.String("url", src),
		zap.Int64("bytes", n),
	)

	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		return dest, nil
	}

	extracted, err := ExtractZIP(dest, filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))))
	if err != nil {
		return "", err
	}
	for _, p := range extracted {
		if strings.EqualFold(filepath.Ext(p), ext) {
			return p, nil
		}
	}
	return "", eris.Errorf("fetcher: no %s file in archive %s", ext, src)
}

func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, r)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
