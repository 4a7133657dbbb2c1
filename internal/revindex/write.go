package revindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"

	"github.com/kamusis/greyhound/internal/sketch"
)

const indexVersion = 1

// fileIndex is the serialized form of a RevIndex.
type fileIndex struct {
	Version   int       `json:"version"`
	CreatedAt string    `json:"created_at"`
	KSize     uint32    `json:"ksize"`
	MaxHash   uint64    `json:"max_hash"`
	Datasets  []Dataset `json:"datasets"`
	Postings  []posting `json:"postings"`
	Checksum  string    `json:"checksum"`
}

type posting struct {
	Hash     uint64   `json:"hash"`
	Datasets []uint32 `json:"datasets"`
}

// LockTimeout bounds how long Save waits for another writer of the same path.
var LockTimeout = 30 * time.Second

// Save writes the index to path as gzip-compressed JSON. The file is written
// next to path and renamed into place while holding path + ".lock".
func (ri *RevIndex) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create index dir %s: %w", dir, err)
	}

	unlock, err := acquireLock(path+".lock", LockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	fi := fileIndex{
		Version:   indexVersion,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		KSize:     ri.template.KSize,
		MaxHash:   ri.template.MaxHash,
		Datasets:  ri.datasets,
		Postings:  sortedPostings(ri.postings),
	}
	if fi.Datasets == nil {
		fi.Datasets = []Dataset{}
	}
	fi.Checksum = checksum(ri.template, fi.Datasets, fi.Postings)

	tmp, err := os.CreateTemp(dir, ".greyhound-index-*")
	if err != nil {
		return fmt.Errorf("cannot create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	bw := bufio.NewWriter(tmp)
	zw, err := gzip.NewWriterLevel(bw, gzip.BestSpeed)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if err := json.NewEncoder(zw).Encode(&fi); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot encode index: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("cannot install index %s: %w", path, err)
	}
	return nil
}

// acquireLock obtains an exclusive file lock, polling until timeout.
func acquireLock(lockPath string, timeout time.Duration) (func(), error) {
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire index lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("another process is writing the index (lock: %s)", lockPath)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func sortedPostings(m map[uint64][]uint32) []posting {
	out := make([]posting, 0, len(m))
	for h, ids := range m {
		out = append(out, posting{Hash: h, Datasets: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// checksum digests everything Load reconstructs the index from.
func checksum(tpl sketch.Template, datasets []Dataset, postings []posting) string {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	str := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}

	put(uint64(tpl.KSize))
	put(tpl.MaxHash)
	for _, ds := range datasets {
		str(ds.Filename)
		str(ds.Name)
		put(uint64(ds.Size))
	}
	for _, p := range postings {
		put(p.Hash)
		put(uint64(len(p.Datasets)))
		for _, id := range p.Datasets {
			put(uint64(id))
		}
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
