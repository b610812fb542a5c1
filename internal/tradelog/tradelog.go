package tradelog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"etf-trader/internal/types"
)

var (
	mu  sync.Mutex
	dir string
	now = time.Now
)

// AuditEntry is one completion attempt: the raw request and the raw response
// (or the error) exactly as exchanged.
type AuditEntry struct {
	Time       string       `json:"time"`
	Instrument string       `json:"instrument"`
	Date       string       `json:"date"`
	Model      string       `json:"model"`
	Attempt    int          `json:"attempt"`
	Request    types.Prompt `json:"request"`
	Response   string       `json:"response,omitempty"`
	Error      string       `json:"error,omitempty"`
	LatencyMs  int64        `json:"latency_ms"`
}

// SetDir overrides the log directory. An empty dir restores the default.
func SetDir(d string) {
	mu.Lock()
	defer mu.Unlock()
	dir = d
}

func logDir() string {
	if dir != "" {
		return dir
	}
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func auditFilepath(day string) string {
	return filepath.Join(logDir(), "audit", day+".jsonl")
}

// AppendAudit writes e as one JSON line to the audit file of e.Date.
func AppendAudit(e AuditEntry) error {
	mu.Lock()
	defer mu.Unlock()
	e.Time = now().UTC().Format(time.RFC3339Nano)
	if e.Date == "" {
		e.Date = types.DateKey(now())
	}
	p := auditFilepath(e.Date)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadAudit returns the audit entries recorded for day, oldest first.
// A missing file yields no entries.
func ReadAudit(day time.Time) ([]AuditEntry, error) {
	mu.Lock()
	defer mu.Unlock()
	f, err := os.Open(auditFilepath(types.DateKey(day)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return out, fmt.Errorf("audit line %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// CompressOlder gzips audit files last modified more than retentionDays ago
// and removes the originals.
func CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	mu.Lock()
	defer mu.Unlock()
	cutoff := now().AddDate(0, 0, -retentionDays)
	compressed := 0
	err := filepath.WalkDir(logDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// already compressed by an earlier pass
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		compressed++
		return os.Remove(p)
	})
	if errors.Is(err, os.ErrNotExist) {
		return compressed, nil
	}
	return compressed, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
