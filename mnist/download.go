// Package mnist downloads and parses the MNIST handwritten digit dataset and
// serves it through in-memory batch iterators.
package mnist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Remote file names, also used as the names of the cached copies.
const (
	TrainLabels = "train-labels-idx1-ubyte.gz"
	TrainImages = "train-images-idx3-ubyte.gz"
	TestLabels  = "t10k-labels-idx1-ubyte.gz"
	TestImages  = "t10k-images-idx3-ubyte.gz"
)

const (
	DefaultBaseURL = "http://yann.lecun.com/exdb/mnist/"
	DefaultDir     = "data"
)

// Digests maps each file to the SHA-256 of its gzip-compressed content.
var Digests = map[string]string{
	TrainLabels: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
	TrainImages: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	TestLabels:  "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
	TestImages:  "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
}

// ErrChecksum is returned when a downloaded file does not match its digest.
var ErrChecksum = errors.New("checksum mismatch")

// Loader fetches MNIST files into a local cache directory. The zero value
// downloads from DefaultBaseURL into DefaultDir.
type Loader struct {
	BaseURL string
	Dir     string
	Client  *http.Client

	// SkipVerify disables digest checks, for mirrors serving other content.
	SkipVerify bool
}

func (l *Loader) dir() string {
	if l.Dir == "" {
		return DefaultDir
	}
	return l.Dir
}

func (l *Loader) url(name string) string {
	base := l.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + name
}

func (l *Loader) client() *http.Client {
	if l.Client == nil {
		return http.DefaultClient
	}
	return l.Client
}

// Download makes sure name is present in the cache directory and returns its
// path. Files already present are not fetched again nor re-verified.
func (l *Loader) Download(ctx context.Context, name string) (string, error) {
	path := filepath.Join(l.dir(), name)
	if _, err := os.Stat(path); err == nil {
		klog.V(1).Infof("using cached %s", path)
		return path, nil
	}
	if err := os.MkdirAll(l.dir(), 0o755); err != nil {
		return "", errors.Wrapf(err, "create cache directory %s", l.dir())
	}

	url := l.url(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(err, "request %s", url)
	}
	klog.Infof("downloading %s", url)
	resp, err := l.client().Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "download %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("download %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(l.dir(), name+".*.part")
	if err != nil {
		return "", errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, "download %s", url)
	}

	if want, ok := Digests[name]; ok && !l.SkipVerify {
		if got := hex.EncodeToString(h.Sum(nil)); got != want {
			return "", errors.Wrapf(ErrChecksum, "%s: sha256 %s, want %s", name, got, want)
		}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrapf(err, "store %s", path)
	}
	klog.Infof("saved %s (%s)", path, humanize.Bytes(uint64(n)))
	return path, nil
}
