package mod

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrInvalidPath is returned for absolute paths or paths escaping the mod root.
var ErrInvalidPath = errors.New("invalid content path")

// ContentSource reads files from one mod's content, whether it is a plain
// directory or a packaged archive. Paths are slash-separated and relative.
type ContentSource interface {
	FileExists(p string) bool
	ReadText(p string) (string, error)
	ReadBytes(p string) ([]byte, error)
	// Packaged reports whether files live inside an archive and therefore
	// have no path on disk.
	Packaged() bool
	// Location describes where the content lives, for logs.
	Location() string
}

// cleanPath normalizes p and rejects anything outside the content root.
func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || path.IsAbs(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}

// textDecoder turns raw file bytes into UTF-8 text. A leading BOM always wins;
// otherwise the manifest-declared encoding applies, defaulting to UTF-8.
type textDecoder struct {
	enc encoding.Encoding
}

func (d *textDecoder) setEncoding(name string) error {
	if strings.TrimSpace(name) == "" {
		d.enc = nil
		return nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	d.enc = enc
	return nil
}

func (d *textDecoder) decode(b []byte) (string, error) {
	var fallback transform.Transformer = unicode.UTF8.NewDecoder()
	if d.enc != nil {
		fallback = d.enc.NewDecoder()
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), b)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(out), nil
}

// DirSource serves content from a directory on disk.
type DirSource struct {
	textDecoder
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (s *DirSource) resolve(p string) (string, error) {
	c, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}

func (s *DirSource) FileExists(p string) bool {
	full, err := s.resolve(p)
	if err != nil {
		return false
	}
	fi, err := os.Stat(full)
	return err == nil && !fi.IsDir()
}

func (s *DirSource) ReadBytes(p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (s *DirSource) ReadText(p string) (string, error) {
	b, err := s.ReadBytes(p)
	if err != nil {
		return "", err
	}
	return s.decode(b)
}

func (s *DirSource) Packaged() bool   { return false }
func (s *DirSource) Location() string { return s.root }

// Root returns the directory backing the source.
func (s *DirSource) Root() string { return s.root }

// ArchiveSource serves content from a zip archive. When every entry shares a
// single top-level folder, that folder is treated as the content root.
type ArchiveSource struct {
	textDecoder
	path   string
	rc     *zip.ReadCloser
	files  map[string]*zip.File
	prefix string
}

// OpenArchive opens the zip at p and indexes its entries.
func OpenArchive(p string) (*ArchiveSource, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", p, err)
	}
	s := &ArchiveSource{path: p, rc: rc, files: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		s.files[path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))] = f
	}
	s.prefix = commonFolder(s.files)
	return s, nil
}

func commonFolder(files map[string]*zip.File) string {
	if _, ok := files[ManifestFile]; ok {
		return ""
	}
	var prefix string
	for name := range files {
		i := strings.IndexByte(name, '/')
		if i < 0 {
			return ""
		}
		if prefix == "" {
			prefix = name[:i+1]
		} else if !strings.HasPrefix(name, prefix) {
			return ""
		}
	}
	return prefix
}

func (s *ArchiveSource) lookup(p string) (*zip.File, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	f, ok := s.files[s.prefix+c]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", c, s.path, fs.ErrNotExist)
	}
	return f, nil
}

func (s *ArchiveSource) FileExists(p string) bool {
	_, err := s.lookup(p)
	return err == nil
}

func (s *ArchiveSource) ReadBytes(p string) ([]byte, error) {
	f, err := s.lookup(p)
	if err != nil {
		return nil, err
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", p, s.path, err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read %s in %s: %w", p, s.path, err)
	}
	return buf.Bytes(), nil
}

func (s *ArchiveSource) ReadText(p string) (string, error) {
	b, err := s.ReadBytes(p)
	if err != nil {
		return "", err
	}
	return s.decode(b)
}

func (s *ArchiveSource) Packaged() bool   { return true }
func (s *ArchiveSource) Location() string { return s.path }

// Close releases the underlying archive file.
func (s *ArchiveSource) Close() error {
	return s.rc.Close()
}

// MapSource serves content from memory. Used for embedded mods and tests.
type MapSource struct {
	textDecoder
	name     string
	files    map[string][]byte
	packaged bool
}

// NewMapSource builds an in-memory source. packaged makes it report itself as
// an archive, so consumers that extract packaged files can be exercised.
func NewMapSource(name string, files map[string]string, packaged bool) *MapSource {
	m := &MapSource{name: name, files: make(map[string][]byte, len(files)), packaged: packaged}
	for p, body := range files {
		m.files[path.Clean(p)] = []byte(body)
	}
	return m
}

func (s *MapSource) FileExists(p string) bool {
	c, err := cleanPath(p)
	if err != nil {
		return false
	}
	_, ok := s.files[c]
	return ok
}

func (s *MapSource) ReadBytes(p string) ([]byte, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	b, ok := s.files[c]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", c, s.name, fs.ErrNotExist)
	}
	return bytes.Clone(b), nil
}

func (s *MapSource) ReadText(p string) (string, error) {
	b, err := s.ReadBytes(p)
	if err != nil {
		return "", err
	}
	return s.decode(b)
}

func (s *MapSource) Packaged() bool   { return s.packaged }
func (s *MapSource) Location() string { return s.name }

// Files lists every path in the source, sorted.
func (s *MapSource) Files() []string {
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
