package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/toc"
)

const defaultDir = "~/.crazyclient-cache"

// Store keeps complete tables of contents on disk, one gob file per CRC.
type Store struct {
	dir string
}

// Open prepares the cache directory. An empty dir selects the default under
// the user's home.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDir
	}

	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(expanded, 0777)
	if err != nil {
		return nil, err
	}
	return &Store{dir: expanded}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(port crtp.Port, crc uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("%X.%scache", crc, port))
}

func (s *Store) Load(port crtp.Port, crc uint32) ([]toc.Entry, error) {
	file, err := os.Open(s.path(port, crc))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []toc.Entry
	decoder := gob.NewDecoder(file)
	err = decoder.Decode(&entries)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) Save(port crtp.Port, crc uint32, entries []toc.Entry) error {
	file, err := os.OpenFile(s.path(port, crc), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	return encoder.Encode(entries)
}
