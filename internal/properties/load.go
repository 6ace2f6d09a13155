package properties

import (
	"os"
	"strings"

	jprops "github.com/magiconair/properties"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

// Entry is a single key/value pair with its leading comment.
type Entry struct {
	Key     string
	Value   string
	Comment string
}

// File is the parsed content of a translation file in key order.
type File struct {
	Entries []Entry
}

// loader reads files as UTF-8 and keeps ${...} references literal, since
// translations are indexed as written.
var loader = &jprops.Loader{
	Encoding:         jprops.UTF8,
	DisableExpansion: true,
}

// Load reads and parses the translation file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.New(perrors.ErrCodeFileNotFound, "translation file not found: "+path, err)
		}
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "failed to read translation file: "+path, err)
	}
	f, err := LoadBytes(data)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "failed to parse translation file: "+path, err).
			WithDetail("path", path)
	}
	return f, nil
}

// LoadBytes parses translation file content.
func LoadBytes(data []byte) (*File, error) {
	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, err
	}

	keys := p.Keys()
	f := &File{Entries: make([]Entry, 0, len(keys))}
	for _, k := range keys {
		v, _ := p.Get(k)
		f.Entries = append(f.Entries, Entry{
			Key:     k,
			Value:   v,
			Comment: strings.Join(p.GetComments(k), "\n"),
		})
	}
	return f, nil
}

// Map returns the file's key/value pairs.
func (f *File) Map() map[string]string {
	if f == nil {
		return nil
	}
	m := make(map[string]string, len(f.Entries))
	for _, e := range f.Entries {
		m[e.Key] = e.Value
	}
	return m
}
