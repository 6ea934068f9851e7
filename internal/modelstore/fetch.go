package modelstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPSource is a drop where the training job publishes artifact sets.
type FTPSource struct {
	Addr     string // host:port
	User     string
	Password string
	Dir      string
	Timeout  time.Duration
}

// remoteDir is a listing of published artifacts that can be opened by name.
type remoteDir interface {
	NameList(dir string) ([]string, error)
	Open(remote string) (io.ReadCloser, error)
}

type ftpDir struct {
	conn *ftp.ServerConn
}

func (d ftpDir) NameList(dir string) ([]string, error) {
	return d.conn.NameList(dir)
}

func (d ftpDir) Open(remote string) (io.ReadCloser, error) {
	return d.conn.Retr(remote)
}

// FetchFTP downloads the artifact set for prefix from src, writing each file
// next to prefix. Returns the local paths.
func FetchFTP(ctx context.Context, src FTPSource, prefix string, logger *slog.Logger) ([]string, error) {
	timeout := src.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	user := src.User
	if user == "" {
		user = "anonymous"
	}
	password := src.Password
	if password == "" {
		password = "anonymous"
	}

	conn, err := ftp.Dial(src.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(user, password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	return fetchSet(ctx, ftpDir{conn: conn}, src.Dir, prefix, logger)
}

type staged struct {
	tmp, local, stale string
}

// fetchSet downloads every artifact to a temporary name before renaming any
// of them, so a failed fetch leaves the previous set untouched.
func fetchSet(ctx context.Context, remote remoteDir, dir, prefix string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	names, err := remote.NameList(dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", dir, err)
	}
	available := make(map[string]bool, len(names))
	for _, n := range names {
		available[path.Base(n)] = true
	}

	localDir := filepath.Dir(prefix)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}

	base := filepath.Base(prefix)
	var set []staged
	cleanup := func() {
		for _, s := range set {
			os.Remove(s.tmp)
		}
	}

	for _, suffix := range ArtifactSuffixes {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}
		name := base + suffix
		if !available[name] {
			name += ".zst"
		}
		if !available[name] {
			cleanup()
			return nil, fmt.Errorf("artifact %s%s not found in %s", base, suffix, dir)
		}

		local := filepath.Join(localDir, name)
		// The other encoding of the same artifact is removed on commit so
		// Load cannot pick up a stale copy.
		stale := filepath.Join(localDir, base+suffix)
		if stale == local {
			stale += ".zst"
		}
		s := staged{tmp: local + ".tmp", local: local, stale: stale}
		set = append(set, s)

		if err := download(remote, path.Join(dir, name), s.tmp); err != nil {
			cleanup()
			return nil, err
		}
	}

	written := make([]string, 0, len(set))
	for _, s := range set {
		if err := os.Rename(s.tmp, s.local); err != nil {
			cleanup()
			return written, fmt.Errorf("install %s: %w", s.local, err)
		}
		if err := os.Remove(s.stale); err != nil && !os.IsNotExist(err) {
			return written, fmt.Errorf("remove stale %s: %w", s.stale, err)
		}
		logger.Info("models: fetched artifact", "file", s.local)
		written = append(written, s.local)
	}
	return written, nil
}

func download(remote remoteDir, name, tmp string) error {
	r, err := remote.Open(name)
	if err != nil {
		return fmt.Errorf("ftp retr %s: %w", name, err)
	}
	defer r.Close()

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return nil
}
