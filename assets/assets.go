package assets

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("asset not found")

const DefaultDir = "./images"

type Image struct {
	Name        string
	Route       string
	File        string
	ContentType string
}

// Images is fixed for the lifetime of the process.
var Images = []Image{
	{Name: "clouds", Route: "/clouds", File: "clouds2.jpg", ContentType: "image/png"},
	{Name: "stars", Route: "/stars", File: "stars.jpg", ContentType: "image/png"},
	{Name: "infinite-flight", Route: "/infinite-flight", File: "InfiniteFlightDebrief.png", ContentType: "image/png"},
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

func (s *Store) Path(img Image) string {
	return filepath.Join(s.dir, img.File)
}

// Serve copies the image to w. Headers are only written once the file is
// open, so a failure before the copy leaves w untouched.
func (s *Store) Serve(w http.ResponseWriter, img Image) error {
	name := s.Path(img)
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "open %s", name)
	} else if err != nil {
		return errors.Wrapf(err, "open %s", name)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", name)
	}
	if info.IsDir() {
		return errors.Errorf("%s is a directory", name)
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		return errors.Wrapf(err, "copy %s", name)
	}
	return nil
}

// Accounts are the three identifiers read from the environment at startup.
type Accounts struct {
	Host        string
	DBUser      string
	CalypsoUser string
}

func AccountsFromEnv() Accounts {
	return Accounts{
		Host:        os.Getenv("servername"),
		DBUser:      os.Getenv("DBUSER"),
		CalypsoUser: os.Getenv("CALYPSOUSER"),
	}
}

func (a Accounts) List() []string {
	return []string{a.Host, a.DBUser, a.CalypsoUser}
}
