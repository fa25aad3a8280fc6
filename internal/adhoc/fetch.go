package adhoc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// fetchTimeout bounds remote data_url downloads.
const fetchTimeout = 30 * time.Second

// openURL reads a data URL: http(s), file:// or a local path.
func openURL(ctx context.Context, dataURL string) ([]byte, error) {
	u, err := url.Parse(dataURL)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain or Windows drive paths.
		return readFile(dataURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return fetchURL(ctx, dataURL)
	case "file":
		path := u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = u.Host + path
		}
		return readFile(path)
	default:
		return nil, fmt.Errorf("unsupported data_url scheme %q", u.Scheme)
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func fetchURL(ctx context.Context, dataURL string) ([]byte, error) {
	client := &http.Client{Timeout: fetchTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "leapmetrics/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", dataURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d: %s", dataURL, resp.StatusCode, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// extension returns the lowercased file extension of a data URL, ignoring
// any query string.
func extension(dataURL string) string {
	if u, err := url.Parse(dataURL); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		dataURL = u.Path
	}
	i := strings.LastIndexByte(dataURL, '.')
	if i < 0 || strings.ContainsAny(dataURL[i:], `/\`) {
		return ""
	}
	return strings.ToLower(dataURL[i+1:])
}

func isGoogleSheet(dataURL string) bool {
	u, err := url.Parse(dataURL)
	return err == nil && strings.EqualFold(u.Host, "docs.google.com") && strings.Contains(u.Path, "/spreadsheets/")
}

// sheetExportURL turns a Google Sheets link into its CSV export. Links
// already asking for CSV are kept; edit links are rewritten.
func sheetExportURL(dataURL string) (string, error) {
	u, err := url.Parse(dataURL)
	if err != nil {
		return "", err
	}
	if u.Query().Get("format") == "csv" {
		return dataURL, nil
	}
	if !strings.HasSuffix(u.Path, "/edit") {
		return "", fmt.Errorf("unsupported Google Sheets URL %q", dataURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/edit") + "/export"
	u.RawQuery = "format=csv"
	u.Fragment = ""
	return u.String(), nil
}
