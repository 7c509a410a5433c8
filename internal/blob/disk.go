package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"relay/internal/ids"
)

// Disk stores attachments under a local directory served at baseURL.
// Blob names are prefixed with a ULID to avoid overwrites.
type Disk struct {
	dir     string
	baseURL string
}

// NewDisk constructs a disk-backed Store rooted at dir. Files are addressed
// as baseURL/<blob-name>.
func NewDisk(dir, baseURL string) (*Disk, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob: empty directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create dir: %w", err)
	}
	return &Disk{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the backing directory, used to mount the file server.
func (d *Disk) Dir() string { return d.dir }

// Upload writes the data and returns its URL.
func (d *Disk) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("blob: id: %w", err)
	}

	name := id + "-" + sanitizeFilename(filename)
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o640); err != nil {
		return "", fmt.Errorf("blob: write: %w", err)
	}
	return d.baseURL + "/" + name, nil
}

// sanitizeFilename strips path components and characters that do not belong
// in a blob name.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
