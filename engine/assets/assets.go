package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/** @brief What an indexed file holds. */
type AssetKind int

const (
	AssetKindNone AssetKind = iota
	AssetKindMesh
	AssetKindConfig
)

type AssetInfo struct {
	/** @brief The path relative to the asset directory, with forward slashes. */
	Path       string
	Kind       AssetKind
	LastLoaded time.Time
}

/**
 * @brief Indexes the files under an asset directory and watches it for changes.
 * Meshes are opened through it by name.
 */
type AssetManager struct {
	baseDir string
	assets  map[string]AssetInfo

	mutex sync.RWMutex

	listeners []func(path string)

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes assetsDir recursively and starts watching it.
func (am *AssetManager) Initialize(assetsDir string) error {
	abs, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	am.baseDir = abs

	if err := am.addRecursive(abs); err != nil {
		return err
	}
	go am.start()

	core.LogInfo("asset manager watching '%s' (%d assets)", abs, am.Count())
	return nil
}

// OnChange registers fn to be called with the relative path of every indexed file that is written.
func (am *AssetManager) OnChange(fn func(path string)) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.listeners = append(am.listeners, fn)
}

/**
 * @brief Returns the indexed path of name. name is either a path relative to the
 * asset directory or a bare file name, in which case it must be unique.
 */
func (am *AssetManager) Resolve(name string) (string, error) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	key := filepath.ToSlash(filepath.Clean(name))
	if _, ok := am.assets[key]; ok {
		return key, nil
	}
	var matches []string
	for p := range am.assets {
		if filepath.Base(p) == key {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("asset '%s': %w", name, core.ErrItemNotFound)
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return "", fmt.Errorf("asset '%s' is ambiguous (%s): %w", name, strings.Join(matches, ", "), core.ErrDuplicateItem)
}

// Open opens an indexed asset for reading.
func (am *AssetManager) Open(name string) (io.ReadCloser, error) {
	path, err := am.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(am.baseDir, filepath.FromSlash(path)))
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	asset := am.assets[path]
	asset.LastLoaded = time.Now()
	am.assets[path] = asset
	am.mutex.Unlock()
	return f, nil
}

// Assets returns the indexed paths of one kind, sorted.
func (am *AssetManager) Assets(kind AssetKind) []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []string
	for p, a := range am.assets {
		if a.Kind == kind {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Close stops the watcher. It is safe to call more than once.
func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	if am.baseDir == "" {
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("cannot watch '%s': %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if path, ok := am.handleFileEvent(e.Name); ok && e.Op&fsnotify.Write != 0 {
					am.notify(path)
				}
			}
			// Can't stat a deleted directory, so also try to drop it from the watch list.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) notify(path string) {
	am.mutex.RLock()
	listeners := append([]func(string){}, am.listeners...)
	am.mutex.RUnlock()
	for _, fn := range listeners {
		fn(path)
	}
}

// watchRecursive adds all directories under the given one to the watch list and
// indexes the files it finds.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) relative(path string) (string, bool) {
	rel, err := filepath.Rel(am.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// handleFileEvent indexes a created or modified file and returns its relative path.
func (am *AssetManager) handleFileEvent(path string) (string, bool) {
	assetType := determineAssetType(path)
	if assetType == AssetKindNone {
		return "", false
	}
	rel, ok := am.relative(path)
	if !ok {
		return "", false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[rel] = AssetInfo{
		Path:       rel,
		Kind:       assetType,
		LastLoaded: am.assets[rel].LastLoaded,
	}
	return rel, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, rel)
}

func determineAssetType(path string) AssetKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return AssetKindMesh
	case ".toml":
		return AssetKindConfig
	default:
		return AssetKindNone
	}
}
