package cart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fxamacker/cbor/v2"

	"tableside/internal/domain"
)

// State is what a device keeps per join code between runs.
type State struct {
	ClientID    string            `cbor:"client_id"`
	DisplayName string            `cbor:"display_name,omitempty"`
	Items       []domain.CartItem `cbor:"items,omitempty"`
	UpdatedAt   time.Time         `cbor:"updated_at"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cart: CBOR encoder initialization failed: " + err.Error())
	}
}

var validCode = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FileStore keeps one CBOR file per join code under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cart directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(joinCode string) (string, error) {
	if !validCode.MatchString(joinCode) {
		return "", fmt.Errorf("invalid join code %q", joinCode)
	}
	return filepath.Join(s.Dir, "cart-"+joinCode+".cbor"), nil
}

// Load returns the saved state, or a zero State if nothing was saved.
func (s *FileStore) Load(joinCode string) (State, error) {
	p, err := s.path(joinCode)
	if err != nil {
		return State{}, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading cart: %w", err)
	}
	var st State
	if err := cbor.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decoding cart %s: %w", joinCode, err)
	}
	return st, nil
}

// Save writes st atomically.
func (s *FileStore) Save(joinCode string, st State) error {
	p, err := s.path(joinCode)
	if err != nil {
		return err
	}
	data, err := encMode.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".cart-*")
	if err != nil {
		return fmt.Errorf("writing cart: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cart: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cart: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("writing cart: %w", err)
	}
	return nil
}

// Delete drops everything saved for joinCode.
func (s *FileStore) Delete(joinCode string) error {
	p, err := s.path(joinCode)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting cart: %w", err)
	}
	return nil
}
