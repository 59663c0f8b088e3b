// Package restydump writes every exchange of a resty client to disk, it is meant
// for inspecting what a scraper actually received.
package restydump

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// note: fault injection point
type Output interface {
	Write(id string, contents string) error
}

type DirOutput struct {
	directory string
}

// NewDirOutput empties dir and writes every exchange into it.
func NewDirOutput(dir string) (DirOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return DirOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return DirOutput{}, err
	}
	return DirOutput{directory: dir}, nil
}

func (o DirOutput) Write(id string, contents string) error {
	return os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

const maxNameLength = 100

// fileName turns a request url into a readable file name prefixed by its sequence number.
func fileName(seq uint64, rawUrl string) string {
	name := rawUrl
	parsed, err := url.Parse(rawUrl)
	if err == nil {
		name = parsed.Host + parsed.Path
		if parsed.RawQuery != "" {
			name += "_" + parsed.RawQuery
		}
	}
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "-"), "-")
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return fmt.Sprintf("%04d-%s.txt", seq, name)
}

// Instrument writes every response the client receives to output. onError is called
// when writing fails and may be nil.
func Instrument(client *resty.Client, output Output, onError func(err error)) {
	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		seq := atomic.AddUint64(&counter, 1)
		err := output.Write(fileName(seq, res.Request.URL), formatHttpMessage(res))
		if err != nil && onError != nil {
			onError(err)
		}
		return nil
	})
}
