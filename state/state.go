// Package state persists the bridge session across restarts: the image
// inserted in each drive and the browser's working directory.
//
// Sessions are stored as deterministic CBOR. Writes go to a temporary
// file that is renamed over the session file.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ardnew/sdcbridge/pkg"
	"github.com/ardnew/sdcbridge/sdc"
)

// Version is the session format version.
const Version = 1

// Session is the persisted bridge state.
type Session struct {
	Version int                   `cbor:"version"`
	Cwd     string                `cbor:"cwd,omitempty"`
	Images  [sdc.NumDrives]string `cbor:"images"` // Display paths, empty when ejected
}

// Store keeps a session in sync with its file.
type Store struct {
	path string

	mutex   sync.Mutex
	session Session
}

// Open reads the session at path. A missing file yields an empty
// session; the file is created on the first change.
func Open(path string) (*Store, error) {
	s := &Store{path: path, session: Session{Version: Version}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var session Session
	if err := Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if session.Version != Version {
		return nil, fmt.Errorf("%s: session version %d: %w", path, session.Version, pkg.ErrNotSupported)
	}
	s.session = session
	return s, nil
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.path
}

// Session returns a copy of the current session.
func (s *Store) Session() Session {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.session
}

// SetImage records the image in drive and saves the session.
func (s *Store) SetImage(drive sdc.Drive, path string) error {
	if !drive.Valid() {
		return pkg.ErrInvalidDrive
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.session.Images[drive] == path {
		return nil
	}
	s.session.Images[drive] = path
	return s.save()
}

// SetCwd records the working directory and saves the session.
func (s *Store) SetCwd(cwd string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.session.Cwd == cwd {
		return nil
	}
	s.session.Cwd = cwd
	return s.save()
}

// Save writes the session file.
func (s *Store) Save() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.save()
}

func (s *Store) save() error {
	data, err := Marshal(s.session)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	pkg.LogDebug(pkg.ComponentSDC, "session saved", "path", s.path)
	return nil
}

// Restore opens the recorded images on ctrl and changes to the recorded
// directory. Images that no longer open are logged and forgotten. Drives
// without a recorded image keep whatever the controller opened.
func (s *Store) Restore(ctrl *sdc.Controller) {
	session := s.Session()
	for d, path := range session.Images {
		drive := sdc.Drive(d)
		if path == "" {
			continue
		}
		if info, err := ctrl.Slot(drive); err == nil && info.Path == path {
			continue
		}
		if err := ctrl.OpenImagePath(drive, path); err != nil {
			pkg.LogWarn(pkg.ComponentSDC, "session image not restored",
				"drive", drive, "path", path, "error", err)
			if err := s.SetImage(drive, ""); err != nil {
				pkg.LogWarn(pkg.ComponentSDC, "session save failed", "error", err)
			}
		}
	}
	if session.Cwd != "" {
		if _, err := ctrl.Chdir(session.Cwd); err != nil {
			pkg.LogWarn(pkg.ComponentBrowse, "session directory not restored",
				"cwd", session.Cwd, "error", err)
		}
	}
}

// Track returns an image change hook that records changes in s.
func (s *Store) Track() func(drive sdc.Drive, path string) {
	return func(drive sdc.Drive, path string) {
		if err := s.SetImage(drive, path); err != nil {
			pkg.LogWarn(pkg.ComponentSDC, "session save failed", "error", err)
		}
	}
}

// TrackCwd returns a working directory hook that records changes in s.
func (s *Store) TrackCwd() func(dir string) {
	return func(dir string) {
		if err := s.SetCwd(dir); err != nil {
			pkg.LogWarn(pkg.ComponentBrowse, "session save failed", "error", err)
		}
	}
}
