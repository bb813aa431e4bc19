package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly files. Every line is its own
// zstd frame, so a file cut short by a crash still decodes up to the last
// complete line.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder

	now func() time.Time
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteLine(b)
}

func (w *JSONLZstdWriter) WriteLine(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.f == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, bytes.TrimRight(line, "\n")...)
	buf = append(buf, '\n')
	if _, err := w.f.Write(w.enc.EncodeAll(buf, nil)); err != nil {
		return err
	}
	return nil
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Tail reads up to n of the newest lines across the hourly files, oldest first.
// A corrupt trailing frame ends that file's lines without failing the read.
func Tail(baseDir, prefix string, n int) ([][]byte, error) {
	return TailFunc(baseDir, prefix, n, nil)
}

// TailFunc is Tail over the lines keep accepts. Files are read newest first
// until n lines match or the stream is exhausted.
func TailFunc(baseDir, prefix string, n int, keep func([]byte) bool) ([][]byte, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			files = append(files, name)
		}
	}
	// Hour stamps sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var chunks [][][]byte
	total := 0
	for _, name := range files {
		if n > 0 && total >= n {
			break
		}
		lines, err := readLines(filepath.Join(baseDir, name))
		if err != nil {
			return nil, err
		}
		if keep != nil {
			kept := lines[:0]
			for _, l := range lines {
				if keep(l) {
					kept = append(kept, l)
				}
			}
			lines = kept
		}
		chunks = append(chunks, lines)
		total += len(lines)
	}
	out := make([][]byte, 0, total)
	for i := len(chunks) - 1; i >= 0; i-- {
		out = append(out, chunks[i]...)
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out [][]byte
	br := bufio.NewReaderSize(dec, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			out = append(out, line[:len(line)-1])
		}
		// io.EOF or a damaged frame: keep what decoded cleanly.
		if err != nil {
			return out, nil
		}
	}
}
