package handlers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/wsduplex/internal/logging"
	"github.com/muurk/wsduplex/internal/session"
	"go.uber.org/zap"
)

// FrameRecord is one line of a capture file.
type FrameRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	FrameNum     uint64    `json:"frame_num"`
	Direction    string    `json:"direction"`
	FrameType    string    `json:"frame_type"`
	PayloadLen   int       `json:"payload_length"`
	PayloadHex   string    `json:"payload_hex"`
	PayloadASCII string    `json:"payload_ascii"`
}

// Capture records every inbound frame to a JSON Lines file in dir before
// passing it to next. The file is named capture-YYYYMMDD-HHMMSS.jsonl after
// the time the handler was created. An empty dir disables capturing and
// returns next unchanged.
func Capture(dir string, next session.Handler) session.Handler {
	if dir == "" {
		return next
	}
	return &capture{
		path: filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl",
			time.Now().Format("20060102-150405"))),
		next: next,
	}
}

type capture struct {
	path string
	next session.Handler

	mu    sync.Mutex
	count uint64
}

// Path returns the capture file path.
func (c *capture) Path() string { return c.path }

func (c *capture) HandleMessage(m *session.Message) {
	c.save(m)
	c.next.HandleMessage(m)
}

func (c *capture) save(m *session.Message) {
	payload := m.Payload()

	// Handlers on different strands share the file.
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++
	record := FrameRecord{
		Timestamp:    time.Now(),
		FrameNum:     c.count,
		Direction:    "client->server",
		FrameType:    m.Type().String(),
		PayloadLen:   len(payload),
		PayloadHex:   hex.EncodeToString(payload),
		PayloadASCII: toASCII(payload),
	}

	data, err := json.Marshal(record)
	if err != nil {
		logging.Error("Failed to marshal frame record", zap.Error(err))
		return
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logging.Error("Failed to open capture file",
			zap.String("filename", c.path),
			zap.Error(err),
		)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write to capture file",
			zap.String("filename", c.path),
			zap.Error(err),
		)
		return
	}

	logging.Debug("Saved frame to capture file",
		zap.String("filename", c.path),
		zap.Uint64("frame_num", record.FrameNum),
	)
}

// ReadCapture decodes the records of a capture file in order.
func ReadCapture(r io.Reader) ([]FrameRecord, error) {
	dec := json.NewDecoder(r)
	var records []FrameRecord
	for {
		var rec FrameRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

// toASCII converts bytes to an ASCII string; non-printable bytes become '.'.
func toASCII(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
