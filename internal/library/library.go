// Package library exposes the on-disk migration assets: source datasets and
// legacy document folders. Listings are cached and invalidated by a
// filesystem watcher, so repeated polling from the UI stays cheap.
package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// Listing is a snapshot of the available assets.
type Listing struct {
	Datasets        []string `json:"datasets"`
	DocumentFolders []string `json:"document_folders"`
}

// Library serves datasets and documents from two root directories.
type Library struct {
	datasetsDir  string
	documentsDir string
	log          *zap.Logger

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	cached *Listing
}

// New creates a library over the given roots. The filesystem watcher is
// best effort: if it cannot be set up, every Listing call rescans instead.
func New(datasetsDir, documentsDir string, log *zap.Logger) *Library {
	l := &Library{
		datasetsDir:  datasetsDir,
		documentsDir: documentsDir,
		log:          log,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("library watcher unavailable, listings will rescan", zap.Error(err))
		return l
	}
	for _, dir := range []string{datasetsDir, documentsDir} {
		if err := watcher.Add(dir); err != nil {
			log.Warn("cannot watch library dir", zap.String("dir", dir), zap.Error(err))
		}
	}
	l.watcher = watcher
	go l.watch()
	return l
}

// Close releases the filesystem watcher.
func (l *Library) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func (l *Library) watch() {
	for {
		select {
		case _, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.mu.Lock()
			l.cached = nil
			l.mu.Unlock()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Warn("library watcher error", zap.Error(err))
		}
	}
}

// Listing returns the current asset listing, from cache when the watcher
// has seen no changes since the last scan.
func (l *Library) Listing() (Listing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil && l.cached != nil {
		return *l.cached, nil
	}

	listing, err := l.scan()
	if err != nil {
		return Listing{}, err
	}
	l.cached = &listing
	return listing, nil
}

func (l *Library) scan() (Listing, error) {
	listing := Listing{Datasets: []string{}, DocumentFolders: []string{}}

	entries, err := os.ReadDir(l.datasetsDir)
	if err != nil {
		return Listing{}, domain.WrapEngineError(domain.ErrInvalidPath.Code, "read datasets dir", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			listing.Datasets = append(listing.Datasets, e.Name())
		}
	}

	entries, err = os.ReadDir(l.documentsDir)
	if err != nil {
		return Listing{}, domain.WrapEngineError(domain.ErrInvalidPath.Code, "read documents dir", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			listing.DocumentFolders = append(listing.DocumentFolders, e.Name())
		}
	}

	sort.Strings(listing.Datasets)
	sort.Strings(listing.DocumentFolders)
	return listing, nil
}

// Dataset returns the raw content of a named source dataset.
func (l *Library) Dataset(name string) (string, error) {
	path, err := securePath(l.datasetsDir, name)
	if err != nil {
		return "", err
	}
	return readFile(path)
}

// Document returns the raw content of one legacy document inside a folder.
func (l *Library) Document(folder, name string) (string, error) {
	path, err := securePath(l.documentsDir, folder, name)
	if err != nil {
		return "", err
	}
	return readFile(path)
}

// Documents lists the file names inside one document folder.
func (l *Library) Documents(folder string) ([]string, error) {
	path, err := securePath(l.documentsDir, folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DatasetPath resolves a dataset name to its absolute path, for handing to
// the mapper agent.
func (l *Library) DatasetPath(name string) (string, error) {
	path, err := securePath(l.datasetsDir, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrDocumentNotFound
		}
		return "", err
	}
	return path, nil
}

// DocumentsPath resolves a document folder name to its absolute path.
func (l *Library) DocumentsPath(folder string) (string, error) {
	path, err := securePath(l.documentsDir, folder)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrDocumentNotFound
		}
		return "", err
	}
	if !info.IsDir() {
		return "", domain.ErrDocumentNotFound
	}
	return path, nil
}

// securePath joins path elements under root and rejects any result that
// escapes it.
func securePath(root string, elems ...string) (string, error) {
	path := filepath.Join(append([]string{root}, elems...)...)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrInvalidPath
	}
	return path, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrDocumentNotFound
		}
		return "", err
	}
	return string(data), nil
}
