package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/flintkv/flintkv/internal/command"
)

const (
	logFileName      = "log"
	newLogFileName   = "new_log"
	defaultThreshold = 128 * 1024
)

// LogEngine is the log-structured engine: an append-only log file plus an
// in-memory key -> offset index, recovered from the log at open and
// compacted once the log crosses a size threshold.
type LogEngine struct {
	mu sync.Mutex

	dir       string
	file      *os.File
	cursor    int64
	index     map[string]int64
	threshold int64

	compressThreshold int64
	onCompact         func()
	log               *zap.SugaredLogger
}

// Open opens (or creates) dir/log, replays it to rebuild the index, and
// returns a ready-to-use LogEngine. compressThreshold <= 0 disables value
// compression. threshold <= 0 falls back to defaultThreshold. onCompact,
// if non-nil, is called once after every successful compaction.
func Open(dir string, compressThreshold, threshold int64, onCompact func(), log *zap.SugaredLogger) (*LogEngine, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create data dir %s: %w", dir, err)
	}

	if err := promoteLeftoverCompaction(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("engine: open log file %s: %w", path, err)
	}

	e := &LogEngine{
		dir:               dir,
		file:              f,
		index:             make(map[string]int64),
		threshold:         threshold,
		compressThreshold: compressThreshold,
		onCompact:         onCompact,
		log:               log,
	}

	if err := e.recover(); err != nil {
		f.Close()
		return nil, err
	}

	return e, nil
}

// promoteLeftoverCompaction detects a crash that happened between deleting
// the old log and renaming new_log into place, and promotes new_log to
// log if log is missing.
func promoteLeftoverCompaction(dir string) error {
	logPath := filepath.Join(dir, logFileName)
	newLogPath := filepath.Join(dir, newLogFileName)

	_, logErr := os.Stat(logPath)
	_, newLogErr := os.Stat(newLogPath)
	if newLogErr != nil {
		return nil
	}
	if os.IsNotExist(logErr) {
		if err := os.Rename(newLogPath, logPath); err != nil {
			return fmt.Errorf("engine: promote leftover compaction output: %w", err)
		}
	}
	return nil
}

// recover replays the log from offset 0, inserting (key, offset) for every
// record (Set or Remove) into the index, then sets the compaction
// threshold from the recovered file size. A short read or an undecodable
// record ends the replay as end-of-log.
func (e *LogEngine) recover() error {
	var offset int64
	count := 0
	for {
		cmd, size, err := command.ReadNext(e.file, &offset)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, command.ErrCorrupt) {
				break
			}
			return fmt.Errorf("engine: recover: read at offset %d: %w", offset, err)
		}
		e.index[cmd.Key] = offset
		offset += size
		count++
	}
	e.cursor = offset

	// Grow past the configured threshold if the recovered log is already
	// larger than it, so reopening existing data doesn't immediately
	// retrigger compaction.
	if grown := e.cursor * 2; grown > e.threshold {
		e.threshold = grown
	}

	e.log.Infow("engine: recovered log", "records_scanned", count, "cursor", e.cursor, "threshold", e.threshold)
	return nil
}

// Set appends a Set record and updates the index, compacting if the new
// cursor meets or exceeds the threshold.
func (e *LogEngine) Set(key, value string) error {
	e.mu.Lock()

	cmd := command.NewSet(key, value, e.compressThreshold)
	newCursor, err := command.Append(e.file, cmd, e.cursor)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: set %q: %w", key, err)
	}
	if err := e.file.Sync(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: set %q: fsync: %w", key, err)
	}

	e.index[key] = e.cursor
	e.cursor = newCursor
	needsCompaction := e.cursor >= e.threshold

	e.mu.Unlock()

	if needsCompaction {
		if err := e.compact(); err != nil {
			e.log.Warnw("engine: compaction failed", "error", err)
			return err
		}
	}
	return nil
}

// Get looks the key up in the index and reads its record from the log.
func (e *LogEngine) Get(key string) (string, bool, error) {
	e.mu.Lock()
	offset, ok := e.index[key]
	if !ok {
		e.mu.Unlock()
		return "", false, nil
	}

	cmd, _, err := command.ReadNext(e.file, &offset)
	e.mu.Unlock()
	if err != nil {
		if errors.Is(err, command.ErrCorrupt) {
			err = ErrCorrupt
		}
		return "", false, fmt.Errorf("engine: get %q: read record at %d: %w", key, offset, err)
	}

	if cmd.Kind == command.KindRemove {
		// The key was removed since the last compaction (or the recovered
		// log ends with its Remove): the index points at the tombstone.
		return "", false, nil
	}

	value, err := cmd.PlainValue()
	if err != nil {
		return "", false, fmt.Errorf("engine: get %q: %w", key, err)
	}
	return value, true, nil
}

// Remove appends a Remove record for key. Fails with ErrKeyNotFound if key
// is not currently in the index or its latest record is already a Remove.
func (e *LogEngine) Remove(key string) error {
	e.mu.Lock()
	offset, ok := e.index[key]
	if !ok {
		e.mu.Unlock()
		return ErrKeyNotFound
	}
	prev, _, err := command.ReadNext(e.file, &offset)
	if err != nil {
		e.mu.Unlock()
		if errors.Is(err, command.ErrCorrupt) {
			err = ErrCorrupt
		}
		return fmt.Errorf("engine: remove %q: read record at %d: %w", key, offset, err)
	}
	if prev.Kind == command.KindRemove {
		e.mu.Unlock()
		return ErrKeyNotFound
	}

	cmd := command.NewRemove(key)
	newCursor, err := command.Append(e.file, cmd, e.cursor)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: remove %q: %w", key, err)
	}
	if err := e.file.Sync(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: remove %q: fsync: %w", key, err)
	}

	e.index[key] = e.cursor
	e.cursor = newCursor
	needsCompaction := e.cursor >= e.threshold
	e.mu.Unlock()

	if needsCompaction {
		if err := e.compact(); err != nil {
			e.log.Warnw("engine: compaction failed", "error", err)
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying log file.
func (e *LogEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	return e.file.Close()
}

// compact rewrites the log to contain only the Set records needed to
// reconstruct the current index, then atomically swaps it in. Any key
// whose latest record is a Remove has its index entry dropped entirely
// rather than left dangling.
func (e *LogEngine) compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newPath := filepath.Join(e.dir, newLogFileName)
	newFile, err := os.OpenFile(newPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("engine: compact: open new_log: %w", err)
	}

	newIndex := make(map[string]int64, len(e.index))
	var newCursor int64

	for key, oldOffset := range e.index {
		off := oldOffset
		cmd, _, err := command.ReadNext(e.file, &off)
		if err != nil {
			newFile.Close()
			os.Remove(newPath)
			if errors.Is(err, command.ErrCorrupt) {
				err = ErrCorrupt
			}
			return fmt.Errorf("engine: compact: read old record for %q at %d: %w", key, oldOffset, err)
		}
		if cmd.Kind != command.KindSet {
			continue
		}

		next, err := command.Append(newFile, cmd, newCursor)
		if err != nil {
			newFile.Close()
			os.Remove(newPath)
			return fmt.Errorf("engine: compact: write %q: %w", key, err)
		}
		newIndex[key] = newCursor
		newCursor = next
	}

	if err := newFile.Sync(); err != nil {
		newFile.Close()
		os.Remove(newPath)
		return fmt.Errorf("engine: compact: fsync new_log: %w", err)
	}

	oldFile := e.file
	e.file = newFile
	e.index = newIndex
	if float64(newCursor) >= float64(e.threshold)*0.9 {
		e.threshold *= 2
	}
	e.cursor = newCursor

	oldFile.Close()

	logPath := filepath.Join(e.dir, logFileName)
	if err := os.Rename(newPath, logPath); err != nil {
		return fmt.Errorf("engine: compact: rename new_log over log: %w", err)
	}

	if e.onCompact != nil {
		e.onCompact()
	}
	e.log.Infow("engine: compacted log", "new_size", newCursor, "live_keys", len(newIndex))
	return nil
}
