// Package audit provides the append-only access log with an HMAC chain
// for tamper detection.
//
// Every protect, unlock and denied event is recorded as one JSON line.
// Records are chained: each carries an HMAC over its own content plus the
// previous record's HMAC, so deletion, reordering or edits are detectable
// by Verify. The log is consumed by external notification collaborators
// and never mutated by this package after a line is written.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// MinLogDiskSpace is the minimum free space required before a write (1 MB).
const MinLogDiskSpace = 1024 * 1024

// Actions recorded in the access log.
const (
	// ActionProtect records a successful file protection.
	ActionProtect = "protect"
	// ActionUnlock records a successful file unlock.
	ActionUnlock = "unlock"
	// ActionDenied records any refused or failed operation. The attempted
	// operation and the internal failure kind live in the entry context.
	ActionDenied = "denied"
	// ActionVerifyPass records a passed multi-challenge verification.
	ActionVerifyPass = "verify.pass"
	// ActionVerifyFail records a failed verification, a suspected
	// non-human attempt.
	ActionVerifyFail = "verify.fail"
	// ActionSessionCreate records issuance of a session token.
	ActionSessionCreate = "session.create"
	// ActionRotate records a completed key rotation batch.
	ActionRotate = "rotate"
)

// Source identifies where the operation originated.
const (
	SourceCLI   = "cli"
	SourceGuard = "guard"
)

// Result indicates the outcome of an operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// Entry is a single access log record.
type Entry struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Action  string `json:"action"`
	Subject string `json:"subject,omitempty"` // protected file path

	Actor Actor `json:"actor"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	// Context carries operation-dependent detail: the internal failure
	// kind for denied entries, challenge indicators for verify entries.
	Context map[string]interface{} `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor identifies who performed the operation.
type Actor struct {
	Name      string `json:"name,omitempty"` // OS username
	Source    string `json:"source"`         // cli | guard
	SessionID string `json:"session_id,omitempty"`
}

// ErrorInfo contains internal failure detail for audit review. It is
// never shown to the caller of the denied operation.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor for tamper detection.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends access log entries with an HMAC chain.
type Logger struct {
	path     string // log directory
	hmacKey  []byte
	mu       sync.Mutex
	sequence int64
	prevHash string
	actor    string
	keySet   bool
}

// NewLogger creates an access logger writing to the given directory.
func NewLogger(path string) *Logger {
	return &Logger{
		path:     path,
		prevHash: "genesis",
		actor:    currentUsername(),
	}
}

// SetChainKey derives and sets the chain HMAC key from the per-install
// log key using HKDF-SHA256. Until the key is set, Log returns an error.
func (l *Logger) SetChainKey(logKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, logKey, nil, []byte("access-log-v1"))
	l.hmacKey = make([]byte, 32)
	if _, err := r.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive chain key: %w", err)
	}
	l.keySet = true

	// Pick up where an earlier process left the chain. Absence of state
	// means a fresh log.
	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = "genesis"
	}

	return nil
}

// Log appends one entry. sessionID may be empty for operations performed
// before any session exists (init, verification itself).
func (l *Logger) Log(action, source, subject, sessionID, result string, errInfo *ErrorInfo, ctx map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return fmt.Errorf("audit: chain key not set")
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	entry := Entry{
		Version:   1,
		ID:        generateEntryID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		Subject:   subject,
		Actor: Actor{
			Name:      l.actor,
			Source:    source,
			SessionID: sessionID,
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
	}

	l.sequence++
	entry.Chain.Sequence = l.sequence
	entry.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(l.buildRecordData(&entry))
	entry.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))
	l.prevHash = entry.Chain.HMAC

	if err := l.writeEntry(&entry); err != nil {
		return err
	}

	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations.
func (l *Logger) LogSuccess(action, source, subject, sessionID string) error {
	return l.Log(action, source, subject, sessionID, ResultSuccess, nil, nil)
}

// LogDenied records a refused operation. attempted names the operation
// the caller was trying to perform; kind is the internal failure kind,
// recorded for audit but not surfaced to the caller.
func (l *Logger) LogDenied(source, subject, sessionID, attempted, kind string) error {
	return l.Log(ActionDenied, source, subject, sessionID, ResultDenied,
		&ErrorInfo{Code: kind},
		map[string]interface{}{"attempted": attempted})
}

// buildRecordData serializes every significant field of an entry for the
// chain HMAC. Context keys are sorted so the serialization is
// deterministic.
func (l *Logger) buildRecordData(entry *Entry) []byte {
	actorData := fmt.Sprintf("%s|%s|%s",
		entry.Actor.Name, entry.Actor.Source, entry.Actor.SessionID)

	errorData := ""
	if entry.Error != nil {
		errorData = fmt.Sprintf("%s|%s", entry.Error.Code, entry.Error.Message)
	}

	contextData := ""
	if entry.Context != nil {
		keys := make([]string, 0, len(entry.Context))
		for k := range entry.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			contextData += fmt.Sprintf("%s=%v|", k, entry.Context[k])
		}
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		entry.Version,
		entry.ID,
		entry.Timestamp,
		entry.Action,
		entry.Subject,
		actorData,
		entry.Result,
		errorData,
		contextData,
		entry.Chain.Sequence,
		entry.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEntry appends an entry to the current month's log file.
func (l *Logger) writeEntry(entry *Entry) error {
	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	path := filepath.Join(l.path, filename)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal entry: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write entry: %w", err)
	}

	return nil
}

// ChainState holds the persistent chain position.
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "log.meta"))
	if err != nil {
		return err
	}

	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	state := ChainState{Sequence: l.sequence, PrevHash: l.prevHash}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(l.path, "log.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}

	return nil
}

// Verify checks the integrity of the access log chain across all files.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return nil, fmt.Errorf("audit: chain key not set")
	}

	result := &VerifyResult{Valid: true}

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM.jsonl names sort chronologically.
	sort.Strings(files)

	expectedPrev := "genesis"
	var expectedSeq int64 = 1

	for _, file := range files {
		entries, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}

		for _, entry := range entries {
			result.RecordsTotal++

			if entry.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %s: expected %d, got %d",
					entry.ID, expectedSeq, entry.Chain.Sequence))
			}

			if entry.Chain.PrevHash != expectedPrev {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %s: expected prev %s, got %s",
					entry.ID, expectedPrev, entry.Chain.PrevHash))
			}

			mac := hmac.New(sha256.New, l.hmacKey)
			mac.Write(l.buildRecordData(&entry))
			if entry.Chain.HMAC != hex.EncodeToString(mac.Sum(nil)) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at record %s: possible tampering", entry.ID))
			}

			expectedPrev = entry.Chain.HMAC
			expectedSeq++
		}
	}

	result.RecordsVerified = result.RecordsTotal
	return result, nil
}

// VerifyResult contains the results of chain verification.
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// ListEvents returns access log entries, newest last.
// limit caps the number returned (0 = all); since filters out older
// entries (zero = no filter).
func (l *Logger) ListEvents(limit int, since time.Time) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)

	var all []Entry
	for _, file := range files {
		entries, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		for _, entry := range entries {
			if !since.IsZero() {
				ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
				if err != nil || ts.Before(since) {
					continue
				}
			}
			all = append(all, entry)
		}
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func readLogFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > start {
				var entry Entry
				if err := json.Unmarshal(data[start:i], &entry); err != nil {
					return nil, fmt.Errorf("failed to parse line: %w", err)
				}
				entries = append(entries, entry)
			}
			start = i + 1
		}
	}
	return entries, nil
}

// generateEntryID creates a time-sortable unique identifier
// (48-bit millisecond timestamp + 80 random bits, hex encoded).
func generateEntryID() string {
	ts := time.Now().UnixMilli()
	tsBytes := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		tsBytes[i] = byte(ts & 0xFF)
		ts >>= 8
	}

	randBytes := make([]byte, 10)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}

	return hex.EncodeToString(append(tsBytes, randBytes...))
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
