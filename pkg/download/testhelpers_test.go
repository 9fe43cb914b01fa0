package download

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/replicate/batchget/pkg/sink"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

// recordingSink remembers how much it ever held and how it was finished.
type recordingSink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	maxHeld int
	writes  int
	closed  bool
	aborted bool
}

var _ sink.Sink = &recordingSink{}
var _ sink.Aborter = &recordingSink{}

func (r *recordingSink) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	n, err := r.buf.Write(p)
	if r.buf.Len() > r.maxHeld {
		r.maxHeld = r.buf.Len()
	}
	return n, err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) Abort(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = true
	r.buf.Reset()
}

// newTestServer serves:
//
//	/bytes/<n>          n bytes of 'x'
//	/chunked/<n>        n bytes written and flushed 100 at a time
//	/status/<code>      an empty response with the given status
//	/named/<name>       a body with Content-Disposition filename <name>
//	/slow/<ms>          "slow" after waiting ms milliseconds for headers
//	/stall/<ms>         part of a body, then a pause of ms milliseconds
func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/bytes/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("n"))
		_, _ = w.Write(bytes.Repeat([]byte("x"), n))
	})
	mux.HandleFunc("/chunked/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("n"))
		flusher := w.(http.Flusher)
		for n > 0 {
			chunk := min(n, 100)
			if _, err := w.Write(bytes.Repeat([]byte("y"), chunk)); err != nil {
				return
			}
			flusher.Flush()
			n -= chunk
		}
	})
	mux.HandleFunc("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, _ := strconv.Atoi(r.PathValue("code"))
		w.WriteHeader(code)
		_, _ = w.Write([]byte("error body that must not be streamed"))
	})
	mux.HandleFunc("/named/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, r.PathValue("name")))
		_, _ = w.Write([]byte("named content"))
	})
	mux.HandleFunc("/slow/{ms}", func(w http.ResponseWriter, r *http.Request) {
		ms, _ := strconv.Atoi(r.PathValue("ms"))
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte("slow"))
	})
	mux.HandleFunc("/stall/{ms}", func(w http.ResponseWriter, r *http.Request) {
		ms, _ := strconv.Atoi(r.PathValue("ms"))
		w.Header().Set("Content-Length", "20")
		_, _ = w.Write([]byte("0123456789"))
		w.(http.Flusher).Flush()
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	})
	mux.HandleFunc("/echo-header/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get(r.PathValue("name"))))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// closedServerURL returns a URL nothing is listening on.
func closedServerURL() string {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

// runBatch runs d and returns what the callback received, failing the test
// if the callback fires other than exactly once.
func runBatch(t *testing.T, d *Downloader) ([]Failure, []Result) {
	t.Helper()
	var (
		calls   int
		errs    []Failure
		results []Result
	)
	d.Run(t.Context(), func(e []Failure, r []Result) {
		calls++
		errs, results = e, r
	})
	if calls != 1 {
		t.Fatalf("callback fired %d times, want 1", calls)
	}
	return errs, results
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
