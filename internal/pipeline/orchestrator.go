// Package pipeline drives uploaded photos through metadata extraction,
// format conversion and transferable encoding, maintaining one lifecycle
// record per file and notifying the consumer once per successfully
// processed photo.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/config"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/convert"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/datauri"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/exifmeta"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/lifecycle"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/worker"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/pkg/models"
)

// Typed per-file failures surfaced on the lifecycle record.
var (
	ErrUnreadable = errors.New("could not read file")
	ErrTooLarge   = errors.New("file is too large")
)

// Callback is invoked once per successfully processed photo, in the order
// processing completes.
type Callback func(photo models.NormalizedPhoto)

// Archiver stores original upload bytes after successful processing.
// Archival is best-effort and never fails a file.
type Archiver interface {
	Store(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, objectKey string) (bool, error)
}

// completion is the message each file's pipeline emits; a single reducer
// goroutine consumes them and is the only writer of lifecycle status.
type completion struct {
	id     string
	event  lifecycle.Event
	photo  *models.NormalizedPhoto
	detail string
}

// Orchestrator coordinates the per-file pipelines of a batch.
type Orchestrator struct {
	cfg      config.PipelineConfig
	pool     *worker.Pool
	store    *lifecycle.Store
	onPhoto  Callback
	archiver Archiver

	events  chan completion
	pending sync.WaitGroup
	quit    chan struct{}
	stop    sync.Once

	// Success callbacks are delivered by a dedicated dispatch goroutine.
	// The reducer only enqueues, so a slow consumer never holds up status
	// updates or sibling pipelines.
	cbMu     sync.Mutex
	cbCond   *sync.Cond
	cbQueue  []models.NormalizedPhoto
	cbClosed bool
	cbDone   sync.WaitGroup

	mu        sync.Mutex
	started   time.Time
	succeeded int
	failed    int
}

// New creates an orchestrator. onPhoto may be nil when no consumer is
// interested; archiver may be nil to disable archival.
func New(cfg config.PipelineConfig, store *lifecycle.Store, onPhoto Callback, archiver Archiver) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		pool:     worker.NewPool(cfg.Concurrency),
		store:    store,
		onPhoto:  onPhoto,
		archiver: archiver,
		events:   make(chan completion, 64),
		quit:     make(chan struct{}),
		started:  time.Now(),
	}
	o.cbCond = sync.NewCond(&o.cbMu)
	go o.reduce()
	if o.onPhoto != nil {
		go o.dispatch()
	}
	return o
}

// Enqueue registers every upload in the batch and launches its pipeline.
// Files are processed independently; one file's failure neither aborts
// nor delays its siblings. Returned records are the freshly queued set.
func (o *Orchestrator) Enqueue(ctx context.Context, uploads []models.RawUpload) []lifecycle.Record {
	records := make([]lifecycle.Record, 0, len(uploads))

	for _, up := range uploads {
		up := up
		id := uuid.NewString()
		h := &previewHandle{}
		o.store.Add(id, up.Name, h.release)
		if rec, ok := o.store.Get(id); ok {
			records = append(records, rec)
		}

		o.pool.Submit(func() {
			o.processOne(ctx, id, up, h)
		})
	}
	return records
}

// Wait blocks until every enqueued pipeline has finished, its completion
// has been applied to the lifecycle store, and every success callback has
// been delivered.
func (o *Orchestrator) Wait() {
	o.pool.Wait()
	o.pending.Wait()
	o.cbDone.Wait()
}

// Close stops the reducer and the callback dispatcher. Call after Wait;
// later completions are lost.
func (o *Orchestrator) Close() {
	o.stop.Do(func() {
		close(o.quit)
		o.cbMu.Lock()
		o.cbClosed = true
		o.cbMu.Unlock()
		o.cbCond.Broadcast()
	})
}

// Counts reports how many files have succeeded and failed so far.
func (o *Orchestrator) Counts() (succeeded, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.succeeded, o.failed
}

// Summary logs batch counters the way a finished run reports itself.
func (o *Orchestrator) Summary() {
	o.mu.Lock()
	defer o.mu.Unlock()
	logger.Info("Processed %d photos: %d succeeded, %d failed in %s",
		o.succeeded+o.failed, o.succeeded, o.failed,
		time.Since(o.started).Round(time.Millisecond))
}

// Remove discards a lifecycle record. Idempotent; in-flight work for the
// id is not interrupted, its eventual result is simply discarded.
func (o *Orchestrator) Remove(id string) {
	o.store.Remove(id)
}

// reduce is the single consumer of completion messages. Status writes are
// serialized here, so records are never observed mid-update; successes are
// handed to the dispatcher in completion order.
func (o *Orchestrator) reduce() {
	for {
		select {
		case c := <-o.events:
			o.apply(c)
			o.pending.Done()
		case <-o.quit:
			return
		}
	}
}

func (o *Orchestrator) apply(c completion) {
	switch c.event {
	case lifecycle.EventStart:
		if _, err := o.store.Apply(c.id, lifecycle.EventStart, nil); err != nil {
			logger.Warn("lifecycle start for %s: %v", c.id, err)
		}

	case lifecycle.EventSucceed:
		found, err := o.store.Apply(c.id, lifecycle.EventSucceed, func(r *lifecycle.Record) {
			r.HasGeo = c.photo.Geo != nil
		})
		if err != nil {
			logger.Warn("lifecycle success for %s: %v", c.id, err)
			return
		}
		if !found {
			// Removed mid-flight: the result is discarded, not counted.
			return
		}
		o.mu.Lock()
		o.succeeded++
		o.mu.Unlock()
		if o.onPhoto != nil {
			o.enqueueCallback(*c.photo)
		}

	case lifecycle.EventFail:
		found, err := o.store.Apply(c.id, lifecycle.EventFail, func(r *lifecycle.Record) {
			r.ErrorDetail = c.detail
		})
		if err != nil {
			logger.Warn("lifecycle failure for %s: %v", c.id, err)
			return
		}
		if !found {
			return
		}
		o.mu.Lock()
		o.failed++
		o.mu.Unlock()
	}
}

func (o *Orchestrator) enqueueCallback(photo models.NormalizedPhoto) {
	o.cbDone.Add(1)
	o.cbMu.Lock()
	o.cbQueue = append(o.cbQueue, photo)
	o.cbMu.Unlock()
	o.cbCond.Signal()
}

// dispatch delivers success callbacks one at a time in completion order.
// It drains the queue even after Close so no delivery already owed to the
// consumer is lost.
func (o *Orchestrator) dispatch() {
	for {
		o.cbMu.Lock()
		for len(o.cbQueue) == 0 && !o.cbClosed {
			o.cbCond.Wait()
		}
		if len(o.cbQueue) == 0 {
			o.cbMu.Unlock()
			return
		}
		photo := o.cbQueue[0]
		o.cbQueue = o.cbQueue[1:]
		o.cbMu.Unlock()

		o.onPhoto(photo)
		o.cbDone.Done()
	}
}

func (o *Orchestrator) emit(c completion) {
	o.pending.Add(1)
	select {
	case o.events <- c:
	case <-o.quit:
		o.pending.Done()
	}
}

// processOne runs the full pipeline for a single file and emits exactly
// one terminal completion. Nothing may escape uncaught past this
// boundary.
func (o *Orchestrator) processOne(ctx context.Context, id string, up models.RawUpload, h *previewHandle) {
	o.emit(completion{id: id, event: lifecycle.EventStart})

	photo, err := o.run(ctx, id, up, h)
	if err != nil {
		logger.Error("Failed to process %s: %v", up.Name, err)
		o.emit(completion{id: id, event: lifecycle.EventFail, detail: err.Error()})
		return
	}

	logger.Debug("Processed %s (%s, geo=%t)", up.Name, photo.MimeType, photo.Geo != nil)
	o.emit(completion{id: id, event: lifecycle.EventSucceed, photo: photo})
}

func (o *Orchestrator) run(ctx context.Context, id string, up models.RawUpload, h *previewHandle) (*models.NormalizedPhoto, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	original, err := o.readAll(up)
	if err != nil {
		return nil, err
	}

	// Metadata extraction is informational and runs against the original
	// bytes, because conversion strips metadata. It can never fail the
	// file.
	coord := exifmeta.ExtractGPS(original)

	data := original
	mimeType := up.MIME
	if convert.Required(mimeType, up.Name, data) {
		data, mimeType, err = convert.ToJPEG(data)
		if err != nil {
			return nil, err
		}
	} else if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}

	if path, err := o.writePreview(id, mimeType, data); err == nil {
		h.set(path)
		o.store.SetPreview(id, path)
	} else {
		logger.Warn("Could not write preview for %s: %v", up.Name, err)
	}

	o.archive(ctx, id, up, original)

	return &models.NormalizedPhoto{
		ID:       id,
		DataURI:  datauri.Encode(mimeType, data),
		Geo:      coord,
		MimeType: mimeType,
	}, nil
}

func (o *Orchestrator) readAll(up models.RawUpload) ([]byte, error) {
	if o.cfg.MaxUploadBytes > 0 && up.Size > o.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, up.Size)
	}

	rc, err := up.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if o.cfg.MaxUploadBytes > 0 {
		r = io.LimitReader(rc, o.cfg.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if o.cfg.MaxUploadBytes > 0 && int64(len(data)) > o.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w (over %d bytes)", ErrTooLarge, o.cfg.MaxUploadBytes)
	}
	return data, nil
}

// writePreview materializes the display reference backing the record's
// preview. The matching release happens when the record is removed.
func (o *Orchestrator) writePreview(id, mimeType string, data []byte) (string, error) {
	ext := ".img"
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}

	f, err := os.CreateTemp(o.cfg.PreviewDir, "preview-"+id+"-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (o *Orchestrator) archive(ctx context.Context, id string, up models.RawUpload, original []byte) {
	if o.archiver == nil {
		return
	}

	key := id + filepath.Ext(up.Name)
	if ok, err := o.archiver.Exists(ctx, key); err == nil && ok {
		logger.Debug("Skipping archival of %s: already stored", key)
		return
	}
	rc, err := up.Open()
	if err != nil {
		logger.Warn("Could not reopen %s for archival: %v", up.Name, err)
		return
	}
	defer rc.Close()

	if err := o.archiver.Store(ctx, key, rc, int64(len(original)), up.MIME); err != nil {
		logger.Warn("Failed to archive %s: %v", up.Name, err)
	}
}

// previewHandle resolves the race between a removal and a pipeline that
// is still writing the preview: whichever side finishes second cleans up.
type previewHandle struct {
	mu       sync.Mutex
	path     string
	released bool
}

func (h *previewHandle) set(path string) {
	h.mu.Lock()
	released := h.released
	if !released {
		h.path = path
	}
	h.mu.Unlock()

	if released {
		os.Remove(path)
	}
}

func (h *previewHandle) release() {
	h.mu.Lock()
	path := h.path
	h.path = ""
	h.released = true
	h.mu.Unlock()

	if path != "" {
		os.Remove(path)
	}
}
