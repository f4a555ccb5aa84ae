package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
)

// File is one goose SQL migration on disk.
type File struct {
	Version int64
	Name    string
	Path    string
}

// Scan lists the SQL migrations in dir ordered by version. Misnamed files,
// duplicate versions and files without goose Up/Down markers are errors.
func Scan(dir string) ([]File, error) {
	if dir == "" {
		return nil, fmt.Errorf("migrations dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %q: %w", dir, err)
	}

	var files []File
	byVersion := make(map[int64]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		file, err := parseFile(dir, entry.Name())
		if err != nil {
			return nil, err
		}
		if other, dup := byVersion[file.Version]; dup {
			return nil, fmt.Errorf("version %d used by both %s and %s", file.Version, other, entry.Name())
		}
		byVersion[file.Version] = entry.Name()
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// ValidateDir runs Scan and discards the listing.
func ValidateDir(dir string) error {
	_, err := Scan(dir)
	return err
}

func parseFile(dir, base string) (File, error) {
	parts := fileNameRe.FindStringSubmatch(base)
	if parts == nil {
		return File{}, fmt.Errorf("migration %s does not match <YYYYMMDDHHMMSS>_<name>.sql", base)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("migration %s: %w", base, err)
	}

	path := filepath.Join(dir, base)
	body, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read migration %s: %w", base, err)
	}
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(string(body), marker) {
			return File{}, fmt.Errorf("migration %s is missing %q", base, marker)
		}
	}
	return File{Version: version, Name: parts[2], Path: path}, nil
}

// Slug lowercases name and collapses everything outside [a-z0-9] to single
// underscores.
func Slug(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes an empty goose migration named after name and
// returns its path. The version is the current UTC time, bumped past the
// newest existing file when clocks disagree.
func CreateSQLMigration(dir, name string) (string, error) {
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}
	existing, err := Scan(dir)
	if err != nil {
		return "", err
	}

	stamp := time.Now().UTC()
	if n := len(existing); n > 0 {
		latest, err := time.Parse(versionLayout, strconv.FormatInt(existing[n-1].Version, 10))
		if err == nil && !stamp.After(latest) {
			stamp = latest.Add(time.Second)
		}
	}

	path := filepath.Join(dir, stamp.Format(versionLayout)+"_"+slug+".sql")
	body := "-- +goose Up\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n\n" +
		"-- +goose Down\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n"
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write migration file: %w", err)
	}
	return path, nil
}
