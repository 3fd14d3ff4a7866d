package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

const audioExt = ".mp3"

// ErrInvalidName is returned for file names the store did not generate.
var ErrInvalidName = errors.New("invalid audio file name")

// PersistenceError reports a failure to produce or write an audio file.
// Path is empty when synthesis failed before anything was written.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("audio: %v", e.Err)
	}
	return fmt.Sprintf("audio %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store keeps generated audio files in a directory, one file per request.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Save writes r to a new <uuid>.mp3 file and returns its name.
func (s *Store) Save(r io.Reader) (string, error) {
	name := uuid.NewString() + audioExt
	path := filepath.Join(s.dir, name)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, ".audio-*")
	if err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", &PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}
	return name, nil
}

// Path resolves a file name produced by Save. Names that are not
// <uuid>.mp3 are rejected.
func (s *Store) Path(name string) (string, error) {
	id, ok := strings.CutSuffix(name, audioExt)
	if !ok {
		return "", ErrInvalidName
	}
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// Narrator speaks text and stores the result.
type Narrator struct {
	synth Synthesizer
	store *Store
}

// NewNarrator creates a narrator.
func NewNarrator(synth Synthesizer, store *Store) *Narrator {
	return &Narrator{synth: synth, store: store}
}

// Narrate renders text and returns the stored file name. Every failure is a
// *PersistenceError.
func (n *Narrator) Narrate(ctx context.Context, text string) (string, error) {
	if n.synth == nil {
		return "", &PersistenceError{Err: ErrDisabled}
	}

	audio, err := n.synth.Speak(ctx, text)
	if err != nil {
		return "", &PersistenceError{Err: err}
	}
	defer audio.Close()

	name, err := n.store.Save(audio)
	if err != nil {
		return "", err
	}
	logger.Log.Infof("Saved narration to %s", filepath.Join(n.store.Dir(), name))
	return name, nil
}
