package extract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"graphetl/internal/config"
	"graphetl/internal/models"
	"graphetl/internal/schema"

	"github.com/djherbis/times"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gobwas/glob"
)

// inferSampleRows bounds how many rows are read while guessing column kinds.
const inferSampleRows = 200

// ObjectFetcher downloads a remote object to a local file and returns its
// path. The MinIO-backed implementation lives in minio_fetcher.go; tests
// substitute their own.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) (string, error)
}

// StagedFile records one concrete input file of a flat-file source, for the
// run manifest.
type StagedFile struct {
	Path     string
	Modified time.Time
}

// fileScan caches the result of peeking into the files behind one path spec.
type fileScan struct {
	files  []StagedFile
	header []string
	kinds  []schema.Kind
}

// FileSource extracts rows from CSV or XLSX files. The configured path may
// be a single local file, a glob pattern, or a minio://bucket/key object
// reference.
type FileSource struct {
	name    string
	format  string // config.SourceCSV or config.SourceXLSX
	cfg     config.FileConfig
	fetcher ObjectFetcher

	mu    sync.Mutex
	scans map[string]*fileScan
}

// NewFileSource creates a flat-file source. fetcher may be nil when no
// minio:// paths are configured.
func NewFileSource(name, format string, cfg config.FileConfig, fetcher ObjectFetcher) *FileSource {
	return &FileSource{
		name:    name,
		format:  format,
		cfg:     cfg,
		fetcher: fetcher,
		scans:   make(map[string]*fileScan),
	}
}

func (s *FileSource) Name() string { return s.name }

func (s *FileSource) Close(ctx context.Context) error { return nil }

// path returns the effective path of a spec: the binding's table field may
// override the source-level path so one source can serve several files.
func (s *FileSource) path(spec SelectSpec) string {
	if spec.Table != "" {
		return spec.Table
	}
	return s.cfg.Path
}

// Files reports the concrete input files behind a spec, for the manifest.
// It requires a prior Fields or Stream call to have scanned the path.
func (s *FileSource) Files(spec SelectSpec) []StagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scan, ok := s.scans[s.path(spec)]; ok {
		return scan.files
	}
	return nil
}

// Fields resolves the files behind the spec, reads the shared header and
// infers a kind per column from sampled cells.
func (s *FileSource) Fields(ctx context.Context, spec SelectSpec) ([]schema.Field, error) {
	scan, err := s.scan(ctx, spec)
	if err != nil {
		return nil, err
	}

	var fields []schema.Field
	for i, col := range scan.header {
		if !spec.keep(col) {
			continue
		}
		fields = append(fields, schema.NewInferredField(spec.property(col), scan.kinds[i], s.name))
	}
	return fields, nil
}

// Stream emits every data row of every resolved file.
func (s *FileSource) Stream(ctx context.Context, spec SelectSpec, out chan<- *models.Record) (int64, error) {
	scan, err := s.scan(ctx, spec)
	if err != nil {
		return 0, err
	}

	var skipped int64
	for _, f := range scan.files {
		var n int64
		if s.format == config.SourceXLSX {
			n, err = s.streamXLSX(ctx, f.Path, scan, spec, out)
		} else {
			n, err = s.streamCSV(ctx, f.Path, scan, spec, out)
		}
		skipped += n
		if err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

// rowToRecord converts one raw row (cells aligned with scan.header) into a
// Record, or nil when the row is missing its identity.
func rowToRecord(scan *fileScan, spec SelectSpec, cells []string) *models.Record {
	rec := &models.Record{Values: make(map[string]interface{}, len(scan.header))}
	for i, col := range scan.header {
		var raw string
		if i < len(cells) {
			raw = cells[i]
		}
		switch {
		case !spec.IsRelation() && col == spec.URIKey:
			rec.URI = raw
		case spec.IsRelation() && col == spec.StartKey:
			rec.StartURI = raw
		case spec.IsRelation() && col == spec.EndKey:
			rec.EndURI = raw
		case spec.keep(col):
			if v := schema.ParseCell(raw, scan.kinds[i]); v != nil {
				rec.Values[spec.property(col)] = v
			}
		}
	}
	if incomplete(spec, rec) {
		return nil
	}
	return rec
}

// scan resolves and peeks the path once, caching the result.
func (s *FileSource) scan(ctx context.Context, spec SelectSpec) (*fileScan, error) {
	path := s.path(spec)

	s.mu.Lock()
	if scan, ok := s.scans[path]; ok {
		s.mu.Unlock()
		return scan, nil
	}
	s.mu.Unlock()

	files, err := s.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	var header []string
	var kinds []schema.Kind
	for i, f := range files {
		h, k, err := s.peekFile(f.Path)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			header, kinds = h, k
			continue
		}
		if !equalHeader(header, h) {
			return nil, fmt.Errorf("source %s: file %s header does not match %s", s.name, f.Path, files[0].Path)
		}
		for j := range kinds {
			kinds[j] = combineInferred(kinds[j], k[j])
		}
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("source %s, path %s: %w", s.name, path, ErrNoHeader)
	}

	scan := &fileScan{files: files, header: header, kinds: kinds}
	s.mu.Lock()
	s.scans[path] = scan
	s.mu.Unlock()
	return scan, nil
}

// resolve turns the configured path into a sorted list of local files.
func (s *FileSource) resolve(ctx context.Context, path string) ([]StagedFile, error) {
	switch {
	case strings.HasPrefix(path, "minio://"):
		if s.fetcher == nil {
			return nil, fmt.Errorf("source %s: path %s needs a configured minio section", s.name, path)
		}
		rest := strings.TrimPrefix(path, "minio://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("source %s: malformed object path %q", s.name, path)
		}
		local, err := s.fetcher.Fetch(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.name, err)
		}
		return s.statAll([]string{local})

	case strings.ContainsAny(path, "*?[{"):
		matches, err := expandGlob(path)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.name, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("source %s: pattern %q matched no files", s.name, path)
		}
		return s.statAll(matches)

	default:
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("source %s: %w", s.name, err)
		}
		return s.statAll([]string{path})
	}
}

// statAll verifies formats and collects modification times for the manifest.
func (s *FileSource) statAll(paths []string) ([]StagedFile, error) {
	files := make([]StagedFile, 0, len(paths))
	for _, p := range paths {
		if err := s.verifyFormat(p); err != nil {
			return nil, err
		}
		modified := time.Time{}
		if ts, err := times.Stat(p); err == nil {
			modified = ts.ModTime()
		}
		files = append(files, StagedFile{Path: p, Modified: modified})
	}
	return files, nil
}

// verifyFormat sniffs the file content when the extension is absent or does
// not match the configured format, so a mislabeled workbook fails early
// instead of producing garbage rows.
func (s *FileSource) verifyFormat(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	expectedExt := ".csv"
	if s.format == config.SourceXLSX {
		expectedExt = ".xlsx"
	}
	if ext == expectedExt {
		return nil
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("source %s: sniffing %s: %w", s.name, path, err)
	}
	isXLSX := mt.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet") ||
		mt.Is("application/zip")
	switch {
	case s.format == config.SourceXLSX && !isXLSX:
		return fmt.Errorf("source %s: %s is %s, not an XLSX workbook", s.name, path, mt.String())
	case s.format == config.SourceCSV && isXLSX:
		return fmt.Errorf("source %s: %s looks like an XLSX workbook, not CSV", s.name, path)
	}
	return nil
}

// peekFile reads the header and a sample of rows from one file.
func (s *FileSource) peekFile(path string) ([]string, []schema.Kind, error) {
	if s.format == config.SourceXLSX {
		return s.peekXLSX(path)
	}
	return s.peekCSV(path)
}

// expandGlob matches a gobwas/glob pattern against the tree under its
// longest literal prefix directory.
func expandGlob(pattern string) ([]string, error) {
	normalized := filepath.ToSlash(pattern)
	g, err := glob.Compile(normalized, '/')
	if err != nil {
		return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
	}

	base := "."
	parts := strings.Split(normalized, "/")
	var literal []string
	for _, part := range parts {
		if strings.ContainsAny(part, "*?[{") {
			break
		}
		literal = append(literal, part)
	}
	if len(literal) > 0 {
		base = strings.Join(literal, "/")
		if base == "" {
			base = "/"
		}
	}

	var matches []string
	err = filepath.WalkDir(filepath.FromSlash(base), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if g.Match(filepath.ToSlash(p)) {
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func equalHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// combineInferred merges per-file kind guesses for one column.
func combineInferred(a, b schema.Kind) schema.Kind {
	if a == b {
		return a
	}
	if (a == schema.KindInt && b == schema.KindFloat) || (a == schema.KindFloat && b == schema.KindInt) {
		return schema.KindFloat
	}
	return schema.KindString
}
