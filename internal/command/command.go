// Package command defines the log record model — a tagged Set/Remove
// command — and its length-prefixed textual encoding on a seekable byte
// stream.
package command

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v2"
)

// ErrCorrupt marks a record whose payload failed to decode: truncated or
// invalid YAML, or an unrecognized Kind.
var ErrCorrupt = errors.New("command: corrupt record")

// Kind tags which variant a Command holds.
type Kind string

const (
	KindSet    Kind = "set"
	KindRemove Kind = "remove"
)

// Command is a single mutation serialized to the log. Value and
// Compressed are only meaningful for KindSet.
type Command struct {
	Kind       Kind   `yaml:"kind"`
	Key        string `yaml:"key"`
	Value      string `yaml:"value,omitempty"`
	Compressed bool   `yaml:"compressed,omitempty"`
}

// NewSet builds a Set command, snappy-compressing Value when it is at
// least compressThreshold bytes long. compressThreshold <= 0 disables
// compression.
func NewSet(key, value string, compressThreshold int64) Command {
	if compressThreshold > 0 && int64(len(value)) >= compressThreshold {
		compressed := snappy.Encode(nil, []byte(value))
		return Command{
			Kind:       KindSet,
			Key:        key,
			Value:      base64.StdEncoding.EncodeToString(compressed),
			Compressed: true,
		}
	}
	return Command{Kind: KindSet, Key: key, Value: value}
}

// NewRemove builds a Remove command.
func NewRemove(key string) Command {
	return Command{Kind: KindRemove, Key: key}
}

// PlainValue returns the logical (decompressed) value of a Set command.
func (c Command) PlainValue() (string, error) {
	if !c.Compressed {
		return c.Value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(c.Value)
	if err != nil {
		return "", fmt.Errorf("command: decode base64 payload: %w", err)
	}
	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		return "", fmt.Errorf("command: snappy decode: %w", err)
	}
	return string(decoded), nil
}

// encode renders the command to its self-describing textual payload
// (without the length prefix).
func (c Command) encode() ([]byte, error) {
	return yaml.Marshal(c)
}

func decode(payload []byte) (Command, error) {
	var c Command
	if err := yaml.Unmarshal(payload, &c); err != nil {
		return Command{}, fmt.Errorf("command: decode payload: %w: %w", ErrCorrupt, err)
	}
	if c.Kind != KindSet && c.Kind != KindRemove {
		return Command{}, fmt.Errorf("command: unknown kind %q: %w", c.Kind, ErrCorrupt)
	}
	return c, nil
}

// ReadNext reads one record from r. If offset is non-nil, it seeks there
// first; otherwise it reads from the stream's current position. It
// returns the decoded command and the record's total on-disk size
// (8 + payload length). io.EOF or io.ErrUnexpectedEOF
// signals that fewer bytes than requested were available — callers doing
// log recovery treat that as end-of-log.
func ReadNext(r io.ReadSeeker, offset *int64) (Command, int64, error) {
	if offset != nil {
		if _, err := r.Seek(*offset, io.SeekStart); err != nil {
			return Command{}, 0, fmt.Errorf("command: seek to %d: %w", *offset, err)
		}
	}

	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Command{}, 0, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Command{}, 0, err
	}

	cmd, err := decode(payload)
	if err != nil {
		return Command{}, 0, err
	}
	return cmd, int64(8 + n), nil
}

// Append encodes cmd and writes it at offset, returning offset+recordSize.
func Append(w io.WriteSeeker, cmd Command, offset int64) (int64, error) {
	payload, err := cmd.encode()
	if err != nil {
		return 0, fmt.Errorf("command: encode: %w", err)
	}

	if _, err := w.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("command: seek to %d: %w", offset, err)
	}

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return 0, fmt.Errorf("command: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return 0, fmt.Errorf("command: write payload: %w", err)
	}

	return offset + 8 + int64(len(payload)), nil
}
