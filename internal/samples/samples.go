// Package samples serves the bundled example flight records.
package samples

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kartoza/aviation-risk/internal/record"
)

// ErrNotFound is returned for an unknown sample name
var ErrNotFound = errors.New("sample not found")

// Sample is one example record file
type Sample struct {
	Name  string
	Label string
	Path  string
}

// Catalog lists sample CSV files in a directory
type Catalog struct {
	dir string
}

// NewCatalog creates a catalog over dir. The directory must exist.
func NewCatalog(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open samples directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("samples path %s is not a directory", dir)
	}
	return &Catalog{dir: dir}, nil
}

// Dir returns the catalog directory
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns the samples in natural name order, labelled "Test Case N"
func (c *Catalog) List() ([]Sample, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})

	out := make([]Sample, len(names))
	for i, name := range names {
		out[i] = Sample{
			Name:  name,
			Label: fmt.Sprintf("Test Case %d", i+1),
			Path:  filepath.Join(c.dir, name),
		}
	}
	return out, nil
}

// Get looks a sample up by file name
func (c *Catalog) Get(name string) (Sample, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return Sample{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	list, err := c.List()
	if err != nil {
		return Sample{}, err
	}
	for _, s := range list {
		if s.Name == name {
			return s, nil
		}
	}
	return Sample{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Load reads the record held by a sample
func (c *Catalog) Load(name string) (Sample, record.RawRecord, error) {
	s, err := c.Get(name)
	if err != nil {
		return Sample{}, record.RawRecord{}, err
	}
	rec, err := record.ReadFile(s.Path)
	if err != nil {
		return Sample{}, record.RawRecord{}, err
	}
	return s, rec, nil
}

// naturalLess orders "sample_2" before "sample_10"
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ra, rb := leadingRun(a), leadingRun(b)
		na, errA := strconv.Atoi(ra)
		nb, errB := strconv.Atoi(rb)
		switch {
		case errA == nil && errB == nil && na != nb:
			return na < nb
		case errA != nil || errB != nil:
			if ra != rb {
				return ra < rb
			}
		case ra != rb:
			return ra < rb
		}
		a, b = a[len(ra):], b[len(rb):]
	}
	return len(a) < len(b)
}

// leadingRun returns the leading run of digits or of non-digits
func leadingRun(s string) string {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
