// Package transfer implements the file transfer engine:
// chunked upload buffering keyed by transfer id, reassembly, the recent
// files list, and the progress/speed figures the file_progress messages
// report. No ETA is computed.
package transfer

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relayhub/internal/config"
)

// Status is the lifecycle state of a FileTransfer.
type Status string

const (
	Pending      Status = "pending"
	Transferring Status = "transferring"
	Completed    Status = "completed"
	Failed       Status = "failed"
	Cancelled    Status = "cancelled"
)

var (
	ErrFileTooLarge       = errors.New("File too large")
	ErrFileTypeNotAllowed = errors.New("File type not allowed")
	ErrTransferNotFound   = errors.New("transfer not found")
)

// Transfer is the in-memory upload buffer keyed by transferId.
type Transfer struct {
	ID           string
	FileName     string
	FileSize     int64
	FileType     string
	Password     string
	Direction    string
	Status       Status
	ReceivedSize int64
	StartTime    time.Time

	chunks map[int][]byte
}

// RecentFile is one entry of a password's FIFO recent-files list.
type RecentFile struct {
	FileName  string
	FileSize  int64
	FileType  string
	Timestamp time.Time
}

// Engine owns the transfer table and the per-password recent-files FIFO.
// One coarse mutex, same rationale as internal/registry.
type Engine struct {
	mu          sync.Mutex
	cfg         *config.Config
	transfers   map[string]*Transfer
	recentFiles map[string][]RecentFile

	// purge lets tests substitute a synchronous stand-in for time.AfterFunc.
	purge func(d time.Duration, f func())
}

// New returns an empty Engine bound to cfg's size/MIME/grace tunables.
func New(cfg *config.Config) *Engine {
	return &Engine{
		cfg:         cfg,
		transfers:   make(map[string]*Transfer),
		recentFiles: make(map[string][]RecentFile),
		purge:       func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// StartUpload validates fileSize/fileType and allocates a transferId.
func (e *Engine) StartUpload(password, fileName string, fileSize int64, fileType string) (*Transfer, error) {
	if fileSize > e.cfg.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if !e.mimeAllowed(fileType) {
		return nil, ErrFileTypeNotAllowed
	}

	t := &Transfer{
		ID:        uuid.NewString(),
		FileName:  fileName,
		FileSize:  fileSize,
		FileType:  fileType,
		Password:  password,
		Direction: "upload",
		Status:    Pending,
		StartTime: time.Now(),
		chunks:    make(map[int][]byte),
	}

	e.mu.Lock()
	e.transfers[t.ID] = t
	e.mu.Unlock()

	return t, nil
}

func (e *Engine) mimeAllowed(mime string) bool {
	for _, p := range e.cfg.AllowedMimePrefixes {
		if strings.HasPrefix(mime, p) {
			return true
		}
	}
	for _, m := range e.cfg.AllowedMimeTypes {
		if mime == m {
			return true
		}
	}
	return false
}

// StoreChunk stores data (raw bytes; the caller base64-decodes) at
// chunkIndex, overwriting any existing chunk there. Returns the transfer's
// progress (0..100) and its average speed in bytes/sec since StartUpload.
func (e *Engine) StoreChunk(transferID string, chunkIndex int, data []byte) (progress float64, speedBps float64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.transfers[transferID]
	if !ok {
		return 0, 0, ErrTransferNotFound
	}

	t.Status = Transferring
	if old, had := t.chunks[chunkIndex]; had {
		t.ReceivedSize -= int64(len(old))
	}
	t.chunks[chunkIndex] = data
	t.ReceivedSize += int64(len(data))

	if t.FileSize > 0 {
		progress = float64(t.ReceivedSize) * 100 / float64(t.FileSize)
	}
	elapsed := time.Since(t.StartTime).Seconds()
	if elapsed > 0 {
		speedBps = float64(t.ReceivedSize) / elapsed
	}
	return progress, speedBps, nil
}

// CompleteUpload concatenates present chunks in ascending index order,
// records a RecentFiles entry, and schedules the transfer's purge after
// the configured grace period.
func (e *Engine) CompleteUpload(transferID string) (fileData []byte, t *Transfer, err error) {
	e.mu.Lock()

	tr, ok := e.transfers[transferID]
	if !ok {
		e.mu.Unlock()
		return nil, nil, ErrTransferNotFound
	}

	indices := make([]int, 0, len(tr.chunks))
	for idx := range tr.chunks {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var buf []byte
	for _, idx := range indices {
		buf = append(buf, tr.chunks[idx]...)
	}

	tr.Status = Completed
	e.addRecentFileLocked(tr.Password, RecentFile{
		FileName:  tr.FileName,
		FileSize:  tr.FileSize,
		FileType:  tr.FileType,
		Timestamp: time.Now(),
	})

	id := tr.ID
	e.mu.Unlock()

	e.purge(e.cfg.TransferGrace, func() {
		e.mu.Lock()
		delete(e.transfers, id)
		e.mu.Unlock()
	})

	return buf, tr, nil
}

// CancelUpload marks a transfer cancelled and removes it immediately.
func (e *Engine) CancelUpload(transferID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transfers[transferID]
	if !ok {
		return ErrTransferNotFound
	}
	t.Status = Cancelled
	delete(e.transfers, transferID)
	return nil
}

func (e *Engine) addRecentFileLocked(password string, rf RecentFile) {
	list := append(e.recentFiles[password], rf)
	if over := len(list) - e.cfg.RecentFilesLimit; over > 0 {
		list = list[over:]
	}
	e.recentFiles[password] = list
}

// RecentFilesFor returns password's recent files, newest last (FIFO order).
func (e *Engine) RecentFilesFor(password string) []RecentFile {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecentFile, len(e.recentFiles[password]))
	copy(out, e.recentFiles[password])
	return out
}

// TransferPassword returns the owning password of a transfer, used by the
// router to scope cancellation/ownership checks.
func (e *Engine) TransferPassword(transferID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transfers[transferID]
	if !ok {
		return "", false
	}
	return t.Password, true
}
