package updater

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"volunteerops/config"
	"volunteerops/db"
)

type HTTPFeed struct {
	URL    string
	Client *http.Client
}

func (f *HTTPFeed) Latest(ctx context.Context) (*Release, error) {
	if f.URL == "" {
		return nil, fmt.Errorf("no update feed configured")
	}
	body, err := get(ctx, f.Client, f.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return nil, err
	}
	var rel Release
	if err := sonic.Unmarshal(raw, &rel); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if rel.Version == "" || rel.ZipURL == "" {
		return nil, fmt.Errorf("feed is missing version or zip_url")
	}
	return &rel, nil
}

func get(ctx context.Context, c *http.Client, url string) (io.ReadCloser, error) {
	if c == nil {
		c = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}

type HTTPDownloader struct {
	Dir    string
	Client *http.Client
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) (string, error) {
	body, err := get(ctx, d.Client, url)
	if err != nil {
		return "", err
	}
	defer body.Close()
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(d.Dir, "release-*.zip")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// DirBackup zips the install directory, skipping the backup directory itself.
type DirBackup struct {
	Source string
	Dest   string
	Now    func() time.Time
}

func (b *DirBackup) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.Dest, 0o755); err != nil {
		return "", err
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	out := filepath.Join(b.Dest, "backup-"+now().UTC().Format("20060102-150405")+".zip")
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer f.Close()
	zw := zip.NewWriter(f)

	skip, _ := filepath.Abs(b.Dest)
	err = filepath.Walk(b.Source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if abs, _ := filepath.Abs(path); abs == skip {
			return filepath.SkipDir
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(b.Source, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return out, nil
}

type ZipExtractor struct {
	Dir string
}

func (z *ZipExtractor) Extract(ctx context.Context, archive string) (string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return "", err
	}
	defer r.Close()
	if err := os.MkdirAll(z.Dir, 0o755); err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp(z.Dir, "staging-*")
	if err != nil {
		return "", err
	}
	for _, f := range r.File {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		target := filepath.Join(staging, filepath.FromSlash(f.Name))
		// zip slip; "./" resolves to the staging dir itself
		root := filepath.Clean(staging)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return "", fmt.Errorf("archive entry %q escapes staging dir", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return "", err
		}
	}
	return staging, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	return writeFile(target, src, f.Mode())
}

func writeFile(target string, src io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// DirApplier copies the staged tree over the install directory.
// Files missing from the release are left in place.
type DirApplier struct {
	Target string
}

func (a *DirApplier) Apply(ctx context.Context, stagingDir string) error {
	return filepath.Walk(stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(a.Target, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		return writeFile(dest, src, info.Mode())
	})
}

type GormMigrator struct {
	DB *gorm.DB
}

func (m *GormMigrator) Migrate(ctx context.Context) error {
	return db.Migrate(m.DB.WithContext(ctx))
}

// VersionFilePatcher rewrites the APP_VERSION= line of an env file,
// appending one when absent.
type VersionFilePatcher struct {
	Path string
}

func (v *VersionFilePatcher) Patch(_ context.Context, version string) error {
	raw, err := os.ReadFile(v.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var lines []string
	found := false
	sc := bufio.NewScanner(strings.NewReader(string(raw)))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "APP_VERSION=") {
			line = "APP_VERSION=" + version
			found = true
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if !found {
		lines = append(lines, "APP_VERSION="+version)
	}
	return os.WriteFile(v.Path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// NewDefault wires the file-system and HTTP implementations for an install.
func NewDefault(cfg config.Config, conn *gorm.DB) *Pipeline {
	work := filepath.Join(cfg.BackupDir, "work")
	return &Pipeline{
		Current:  cfg.AppVersion,
		Feed:     &HTTPFeed{URL: cfg.UpdateFeedURL},
		Backup:   &DirBackup{Source: cfg.InstallDir, Dest: cfg.BackupDir},
		Download: &HTTPDownloader{Dir: work},
		Extract:  &ZipExtractor{Dir: work},
		Apply:    &DirApplier{Target: cfg.InstallDir},
		Migrate:  &GormMigrator{DB: conn},
		Patch:    &VersionFilePatcher{Path: cfg.VersionFile},
	}
}
