package charlstm

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding"
)

// A Source supplies the ordered list of raw text segments used to
// build training batches. Each segment is one training example and
// ends with the record terminator "\n".
type Source interface {
	Segments() ([]string, error)
}

// StaticSource is a Source over an in-memory segment list.
type StaticSource []string

// Segments returns the list itself.
func (s StaticSource) Segments() ([]string, error) {
	return s, nil
}

// DirSource reads one segment per file from a directory, skipping
// hidden files. Line endings are normalized to "\n" and a trailing
// newline is appended, so a multi-line file collapses to one logical
// sequence ending in the record terminator.
type DirSource struct {
	Dir string

	// Encoding is the text encoding of the files.
	// A nil Encoding means UTF-8.
	Encoding encoding.Encoding
}

// Segments reads every file in the directory, in name order.
func (d *DirSource) Segments() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "read corpus")
	}
	var segs []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		f, err := os.Open(filepath.Join(d.Dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrap(err, "read corpus")
		}
		data, err := io.ReadAll(decodeReader(f, d.Encoding))
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read corpus: %s", entry.Name())
		}
		segs = append(segs, normalizeLines(string(data)))
	}
	return segs, nil
}

// DanceSource extracts dance titles from a scraped HTML index page.
// Each title becomes one segment of the form "^<title>\n".
type DanceSource struct {
	Path string

	// Encoding is the text encoding of the page.
	// A nil Encoding means UTF-8.
	Encoding encoding.Encoding
}

// Segments parses the page and returns one segment per title.
func (d *DanceSource) Segments() ([]string, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, errors.Wrap(err, "read dance corpus")
	}
	defer f.Close()
	return ParseDanceTitles(decodeReader(f, d.Encoding))
}

// ParseDanceTitles pulls dance titles out of an ibiblio-style index
// page. Each title is the second line of the text node following an
// <a name=...> anchor; anchors with no such line are skipped.
func ParseDanceTitles(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse dance titles")
	}
	var segs []string
	doc.Find("a[name]").Each(func(_ int, sel *goquery.Selection) {
		sib := sel.Get(0).NextSibling
		if sib == nil || sib.Type != html.TextNode {
			return
		}
		lines := strings.Split(sib.Data, "\n")
		if len(lines) < 2 {
			return
		}
		segs = append(segs, "^"+lines[1]+"\n")
	})
	return segs, nil
}

func decodeReader(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc == nil {
		return r
	}
	return enc.NewDecoder().Reader(r)
}

func normalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
