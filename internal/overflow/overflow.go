// Package overflow implements the disk tier a Cache spills cold entries to
// when it is over its memory budget (§4.3, §6 persisted state layout).
//
// Each entry occupies one file named by the hex SHA-256 of its key. A file
// is: a u16 header length, a JSON header ({ttl_ms, created_at, key_len,
// value_len}), then the raw key bytes, then the raw value bytes. Writes go
// to a temp file and are renamed into place so a reader never observes a
// partially written entry. A single in-memory index mirrors what is on
// disk so reads and budget accounting never need a directory scan.
package overflow

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/rs/zerolog"
)

// Meta describes one disk-resident entry, mirroring the in-memory index.
type Meta struct {
	FilePath  string
	SizeBytes int64
	CreatedAt int64
	TTLMillis int64
}

type header struct {
	TTLMillis int64 `json:"ttl_ms"`
	CreatedAt int64 `json:"created_at"`
	KeyLen    int   `json:"key_len"`
	ValueLen  int   `json:"value_len"`
}

// Overflow is a directory-backed secondary tier bounded by its own byte
// budget. It is safe for concurrent use.
type Overflow struct {
	dir    string
	budget int64
	log    zerolog.Logger

	mu    sync.Mutex
	index map[string]Meta
	used  int64
}

// Open prepares dir as the overflow tier for one cache, applying budget as
// the disk-tier byte cap. rebuild controls startup behavior: when true the
// directory is re-indexed from its existing files (best-effort, logged, and
// never blocking cache availability); when false the directory's existing
// contents are left on disk untouched but are not re-admitted to the index.
// Such a file is only replaced when a later Put writes the same key; Delete,
// SweepExpired and Clear act on indexed keys only and never remove it.
func Open(dir string, budget int64, rebuild bool, log zerolog.Logger) (*Overflow, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, carbonerr.Wrap(carbonerr.KindIoError, "create overflow dir", err)
	}
	o := &Overflow{
		dir:    dir,
		budget: budget,
		log:    log,
		index:  make(map[string]Meta),
	}
	if rebuild {
		o.rebuildIndex()
	}
	return o, nil
}

// rebuildIndex best-effort re-indexes existing files left from a prior
// process. Any unreadable or malformed file is skipped and logged rather
// than failing startup.
func (o *Overflow) rebuildIndex() {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		o.log.Warn().Err(err).Str("dir", o.dir).Msg("overflow: rebuild skipped")
		return
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(o.dir, de.Name())
		key, h, err := readHeaderAndKey(path)
		if err != nil {
			o.log.Warn().Err(err).Str("file", path).Msg("overflow: skipping unreadable entry during rebuild")
			continue
		}
		size := int64(len(key)) + int64(h.ValueLen) + 64
		o.index[key] = Meta{FilePath: path, SizeBytes: size, CreatedAt: h.CreatedAt, TTLMillis: h.TTLMillis}
		o.used += size
	}
}

func (o *Overflow) fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(o.dir, hex.EncodeToString(sum[:]))
}

// UsedBytes returns the current disk-tier byte usage.
func (o *Overflow) UsedBytes() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.used
}

// HasRoom reports whether addBytes more would still fit under budget.
func (o *Overflow) HasRoom(addBytes int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.budget <= 0 || o.used+addBytes <= o.budget
}

// Put writes key/value to disk, replacing any prior on-disk copy. The
// write-then-rename sequence runs outside any cache lock the caller may
// hold; callers must only invoke Put for keys they have already budget
// checked (HasRoom), since Put does not itself enforce the cap beyond
// bookkeeping it.
func (o *Overflow) Put(key string, value []byte, createdAt, ttlMillis int64) (Meta, error) {
	path := o.fileName(key)
	tmp := path + ".tmp"

	h := header{TTLMillis: ttlMillis, CreatedAt: createdAt, KeyLen: len(key), ValueLen: len(value)}
	hb, err := json.Marshal(h)
	if err != nil {
		return Meta{}, carbonerr.Wrap(carbonerr.KindIoError, "marshal overflow header", err)
	}

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Meta{}, carbonerr.Wrap(carbonerr.KindIoError, "create overflow tempfile", err)
	}
	if err := writeFrame(f, hb, key, value); err != nil {
		f.Close()
		os.Remove(tmp)
		return Meta{}, carbonerr.Wrap(carbonerr.KindIoError, "write overflow tempfile", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return Meta{}, carbonerr.Wrap(carbonerr.KindIoError, "close overflow tempfile", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Meta{}, carbonerr.Wrap(carbonerr.KindIoError, "rename overflow tempfile", err)
	}

	size := int64(len(key)) + int64(len(value)) + 64
	meta := Meta{FilePath: path, SizeBytes: size, CreatedAt: createdAt, TTLMillis: ttlMillis}

	o.mu.Lock()
	if old, ok := o.index[key]; ok {
		o.used -= old.SizeBytes
	}
	o.index[key] = meta
	o.used += size
	o.mu.Unlock()

	return meta, nil
}

func writeFrame(f *os.File, hb []byte, key string, value []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(hb)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := f.Write(hb); err != nil {
		return err
	}
	if _, err := f.Write([]byte(key)); err != nil {
		return err
	}
	if _, err := f.Write(value); err != nil {
		return err
	}
	return nil
}

// Get reads key's value back from disk. A missing file is treated as
// absence, not an error, per §4.3 (it may have been removed out of band).
func (o *Overflow) Get(key string) ([]byte, Meta, bool, error) {
	o.mu.Lock()
	meta, ok := o.index[key]
	o.mu.Unlock()
	if !ok {
		return nil, Meta{}, false, nil
	}

	value, err := readValue(meta.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		o.mu.Lock()
		delete(o.index, key)
		o.used -= meta.SizeBytes
		o.mu.Unlock()
		o.log.Warn().Str("key", key).Msg("overflow: index entry pointed at a missing file, treating as absent")
		return nil, Meta{}, false, nil
	}
	if err != nil {
		return nil, Meta{}, false, carbonerr.Wrap(carbonerr.KindIoError, "read overflow entry", err)
	}
	return value, meta, true, nil
}

// Delete removes key's on-disk file and index entry. A missing file is
// tolerated, not an error. The bool return reports whether key was
// present in the index before the call.
func (o *Overflow) Delete(key string) (bool, error) {
	o.mu.Lock()
	meta, ok := o.index[key]
	if ok {
		delete(o.index, key)
		o.used -= meta.SizeBytes
	}
	o.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := os.Remove(meta.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, carbonerr.Wrap(carbonerr.KindIoError, "delete overflow entry", err)
	}
	return true, nil
}

// SweepExpired removes up to max disk-tier entries whose TTL has elapsed as
// of nowNano, mirroring the Cache's in-memory background sweep. It returns
// the number of entries removed.
func (o *Overflow) SweepExpired(nowNano int64, max int) int {
	o.mu.Lock()
	type victim struct {
		key  string
		meta Meta
	}
	var victims []victim
	for k, m := range o.index {
		if len(victims) >= max {
			break
		}
		if m.TTLMillis > 0 && nowNano >= m.CreatedAt+m.TTLMillis*int64(1e6) {
			victims = append(victims, victim{k, m})
		}
	}
	for _, v := range victims {
		delete(o.index, v.key)
		o.used -= v.meta.SizeBytes
	}
	o.mu.Unlock()

	for _, v := range victims {
		if err := os.Remove(v.meta.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.log.Warn().Err(err).Str("key", v.key).Msg("overflow: sweep failed to remove expired file")
		}
	}
	return len(victims)
}

// Clear removes every on-disk entry belonging to this overflow tier.
func (o *Overflow) Clear() error {
	o.mu.Lock()
	keys := make([]string, 0, len(o.index))
	for k := range o.index {
		keys = append(keys, k)
	}
	o.mu.Unlock()

	var firstErr error
	for _, k := range keys {
		if _, err := o.Delete(k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func readHeaderAndKey(path string) (string, header, error) {
	_, h, rest, err := readHeaderAndRest(path)
	if err != nil {
		return "", header{}, err
	}
	if len(rest) < h.KeyLen {
		return "", header{}, fmt.Errorf("overflow: truncated key in %s", path)
	}
	return string(rest[:h.KeyLen]), h, nil
}

func readValue(path string) ([]byte, error) {
	_, h, rest, err := readHeaderAndRest(path)
	if err != nil {
		return nil, err
	}
	if len(rest) < h.KeyLen+h.ValueLen {
		return nil, fmt.Errorf("overflow: truncated entry in %s", path)
	}
	return rest[h.KeyLen : h.KeyLen+h.ValueLen], nil
}

func readHeaderAndRest(path string) ([]byte, header, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, header{}, nil, err
	}
	if len(data) < 2 {
		return nil, header{}, nil, fmt.Errorf("overflow: truncated header length in %s", path)
	}
	hlen := binary.BigEndian.Uint16(data[:2])
	if len(data) < 2+int(hlen) {
		return nil, header{}, nil, fmt.Errorf("overflow: truncated header in %s", path)
	}
	var h header
	if err := json.Unmarshal(data[2:2+int(hlen)], &h); err != nil {
		return nil, header{}, nil, fmt.Errorf("overflow: malformed header in %s: %w", path, err)
	}
	return data[2 : 2+int(hlen)], h, data[2+int(hlen):], nil
}
