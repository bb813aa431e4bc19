package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"worldsim.ai/internal/sim/world"
)

const Version = 1

// Header is the first line of every world document, readable without
// decoding the body.
type Header struct {
	Version int       `json:"version"`
	WorldID string    `json:"world_id"`
	Epoch   int64     `json:"epoch"`
	SavedAt time.Time `json:"saved_at"`
}

// Encode writes a header line followed by the JSON world body, zstd-compressed.
func Encode(out io.Writer, w *world.World) error {
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(Header{Version: Version, WorldID: w.ID, Epoch: w.Epoch, SavedAt: time.Now().UTC()})
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(w); err != nil {
		_ = enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Decode(in io.Reader) (Header, *world.World, error) {
	var h Header
	dec, err := zstd.NewReader(in)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version < 1 || h.Version > Version {
		return h, nil, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	var w world.World
	if err := json.NewDecoder(br).Decode(&w); err != nil {
		return h, nil, fmt.Errorf("json decode: %w", err)
	}
	w.Normalize()
	return h, &w, nil
}

func Marshal(w *world.World) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(b []byte) (Header, *world.World, error) {
	return Decode(bytes.NewReader(b))
}

// WriteFile replaces path atomically: a crash leaves either the old or the
// new document, never a torn one.
func WriteFile(path string, w *world.World) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".world-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := Encode(f, w); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadFile(path string) (Header, *world.World, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Decode(f)
}
