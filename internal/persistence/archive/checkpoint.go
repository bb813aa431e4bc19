package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"worldsim.ai/internal/persistence/snapshot"
)

type CheckpointMeta struct {
	WorldID   string `json:"world_id"`
	Epoch     int64  `json:"epoch"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
	Dir       string `json:"-"`
}

// ArchiveCheckpoint copies the world document into `worldDir/archives/epoch_<N>/`
// when the epoch is a multiple of every. It returns archived=false otherwise.
func ArchiveCheckpoint(worldDir, snapshotPath string, h snapshot.Header, every int64) (archivedPath string, archived bool, err error) {
	if every <= 0 || h.Epoch <= 0 || h.Epoch%every != 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("epoch_%012d", h.Epoch))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := CheckpointMeta{
		WorldID:   h.WorldID,
		Epoch:     h.Epoch,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

// ListCheckpoints returns archived checkpoints of one world, oldest first.
func ListCheckpoints(worldDir string) ([]CheckpointMeta, error) {
	root := filepath.Join(worldDir, "archives")
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []CheckpointMeta
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "epoch_") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
		if err != nil {
			continue
		}
		var m CheckpointMeta
		if json.Unmarshal(b, &m) != nil {
			continue
		}
		m.Dir = dir
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
