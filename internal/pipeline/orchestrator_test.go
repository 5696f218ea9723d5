package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/config"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/datauri"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/lifecycle"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/pkg/models"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// collector gathers callback invocations safely across pipelines.
type collector struct {
	mu     sync.Mutex
	photos []models.NormalizedPhoto
}

func (c *collector) add(p models.NormalizedPhoto) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photos = append(c.photos, p)
}

func (c *collector) all() []models.NormalizedPhoto {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.NormalizedPhoto(nil), c.photos...)
}

func newTestOrchestrator(t *testing.T, cb Callback) (*Orchestrator, *lifecycle.Store) {
	t.Helper()
	store := lifecycle.NewStore()
	cfg := config.PipelineConfig{
		Concurrency:    4,
		MaxUploadBytes: 1 << 20,
		PreviewDir:     t.TempDir(),
	}
	o := New(cfg, store, cb, nil)
	t.Cleanup(func() {
		o.Close()
		store.Close()
	})
	return o, store
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// jpegWithGPS builds a real JPEG and splices in an EXIF APP1 segment
// carrying GPS tags for 40° 44' 54.4" N, 73° 59' 8.4" W.
func jpegWithGPS(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var plain bytes.Buffer
	require.NoError(t, jpeg.Encode(&plain, img, nil))
	encoded := plain.Bytes()
	require.Equal(t, []byte{0xff, 0xd8}, encoded[:2])

	tiff := gpsTIFF(t)
	exifPayload := append([]byte("Exif\x00\x00"), tiff...)

	var out bytes.Buffer
	out.Write([]byte{0xff, 0xd8})       // SOI
	out.Write([]byte{0xff, 0xe1})       // APP1 marker
	length := uint16(len(exifPayload) + 2)
	out.Write([]byte{byte(length >> 8), byte(length)})
	out.Write(exifPayload)
	out.Write(encoded[2:]) // rest of the real JPEG stream
	return out.Bytes()
}

// gpsTIFF assembles a little-endian TIFF whose IFD0 points at a GPS
// sub-IFD with the Manhattan coordinates above.
func gpsTIFF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian
	write := func(v interface{}) { require.NoError(t, binary.Write(&buf, le, v)) }

	const (
		gpsOff = uint32(8 + 2 + 12 + 4)
		latOff = gpsOff + 2 + 4*12 + 4
		lonOff = latOff + 24
	)

	buf.WriteString("II")
	write(uint16(42))
	write(uint32(8))

	write(uint16(1))
	write(uint16(0x8825)) // GPS sub-IFD pointer
	write(uint16(4))
	write(uint32(1))
	write(gpsOff)
	write(uint32(0))

	ascii := func(tag uint16, v string) {
		write(tag)
		write(uint16(2))
		write(uint32(2))
		inline := [4]byte{}
		copy(inline[:], v)
		write(inline)
	}
	rational := func(tag uint16, off uint32) {
		write(tag)
		write(uint16(5))
		write(uint32(3))
		write(off)
	}

	write(uint16(4))
	ascii(0x0001, "N")
	rational(0x0002, latOff)
	ascii(0x0003, "W")
	rational(0x0004, lonOff)
	write(uint32(0))

	for _, r := range [][2]uint32{{40, 1}, {44, 1}, {544, 10}} {
		write(r[0])
		write(r[1])
	}
	for _, r := range [][2]uint32{{73, 1}, {59, 1}, {84, 10}} {
		write(r[0])
		write(r[1])
	}
	return buf.Bytes()
}

func TestProcess_PNGWithoutGPS(t *testing.T) {
	col := &collector{}
	o, store := newTestOrchestrator(t, col.add)

	data := pngFixture(t)
	recs := o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("diagonal.png", "image/png", data),
	})
	require.Len(t, recs, 1)
	o.Wait()

	rec, ok := store.Get(recs[0].ID)
	require.True(t, ok)
	assert.Equal(t, lifecycle.StatusSuccess, rec.Status)
	assert.False(t, rec.HasGeo, "metadata absence is not an error")
	assert.Empty(t, rec.ErrorDetail)

	photos := col.all()
	require.Len(t, photos, 1)
	assert.Nil(t, photos[0].Geo)
	assert.Equal(t, "image/png", photos[0].MimeType)

	mimeType, decoded, err := datauri.Decode(photos[0].DataURI)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, data, decoded)
}

func TestProcess_JPEGWithGPS(t *testing.T) {
	col := &collector{}
	o, store := newTestOrchestrator(t, col.add)

	recs := o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("midtown.jpg", "image/jpeg", jpegWithGPS(t)),
	})
	o.Wait()

	rec, _ := store.Get(recs[0].ID)
	assert.Equal(t, lifecycle.StatusSuccess, rec.Status)
	assert.True(t, rec.HasGeo)

	photos := col.all()
	require.Len(t, photos, 1)
	require.NotNil(t, photos[0].Geo)
	assert.InDelta(t, 40.7484, photos[0].Geo.Latitude, 0.0001)
	assert.InDelta(t, -73.9857, photos[0].Geo.Longitude, 0.0001)
	assert.Equal(t, "image/jpeg", photos[0].MimeType)
}

func TestProcess_ConversionFailureIsFatalToFile(t *testing.T) {
	col := &collector{}
	o, store := newTestOrchestrator(t, col.add)

	recs := o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("broken.heic", "image/heic", []byte("not really heic")),
	})
	o.Wait()

	rec, _ := store.Get(recs[0].ID)
	assert.Equal(t, lifecycle.StatusError, rec.Status)
	assert.Contains(t, rec.ErrorDetail, "could not convert image")
	assert.Empty(t, col.all(), "no callback for a failed file")
}

func TestProcess_BatchIndependence(t *testing.T) {
	col := &collector{}
	o, store := newTestOrchestrator(t, col.add)

	data := pngFixture(t)
	recs := o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("first.png", "image/png", data),
		models.NewRawUpload("second.heic", "image/heic", []byte("garbage")),
		models.NewRawUpload("third.png", "image/png", data),
	})
	require.Len(t, recs, 3)
	o.Wait()

	statuses := map[string]lifecycle.Status{}
	for _, r := range store.List() {
		statuses[r.FileName] = r.Status
	}
	assert.Equal(t, lifecycle.StatusSuccess, statuses["first.png"])
	assert.Equal(t, lifecycle.StatusError, statuses["second.heic"])
	assert.Equal(t, lifecycle.StatusSuccess, statuses["third.png"])
	assert.Len(t, col.all(), 2, "siblings of a failed file still complete")
}

func TestProcess_UnreadableFile(t *testing.T) {
	col := &collector{}
	o, store := newTestOrchestrator(t, col.add)

	recs := o.Enqueue(context.Background(), []models.RawUpload{
		{
			Name: "vanished.jpg",
			MIME: "image/jpeg",
			Size: 10,
			Open: func() (io.ReadCloser, error) {
				return nil, errors.New("gone")
			},
		},
	})
	o.Wait()

	rec, _ := store.Get(recs[0].ID)
	assert.Equal(t, lifecycle.StatusError, rec.Status)
	assert.Contains(t, rec.ErrorDetail, "could not read file")
	assert.Empty(t, col.all())
}

func TestProcess_FileTooLarge(t *testing.T) {
	store := lifecycle.NewStore()
	cfg := config.PipelineConfig{Concurrency: 1, MaxUploadBytes: 16, PreviewDir: t.TempDir()}
	o := New(cfg, store, nil, nil)
	t.Cleanup(func() { o.Close(); store.Close() })

	recs := o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("huge.png", "image/png", bytes.Repeat([]byte{1}, 64)),
	})
	o.Wait()

	rec, _ := store.Get(recs[0].ID)
	assert.Equal(t, lifecycle.StatusError, rec.Status)
	assert.Contains(t, rec.ErrorDetail, "too large")
}

func TestRemove_ReleasesPreviewAndIsIdempotent(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)

	recs := o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("keep.png", "image/png", pngFixture(t)),
	})
	o.Wait()

	rec, ok := store.Get(recs[0].ID)
	require.True(t, ok)
	require.NotEmpty(t, rec.PreviewPath)
	_, err := os.Stat(rec.PreviewPath)
	require.NoError(t, err)

	o.Remove(rec.ID)
	o.Remove(rec.ID) // second removal is a no-op

	_, err = os.Stat(rec.PreviewPath)
	assert.True(t, os.IsNotExist(err), "preview handle released on removal")
	_, ok = store.Get(rec.ID)
	assert.False(t, ok)
}

func TestRemove_DuringFlightDiscardsResult(t *testing.T) {
	col := &collector{}

	store := lifecycle.NewStore()
	cfg := config.PipelineConfig{Concurrency: 1, PreviewDir: t.TempDir()}

	gate := make(chan struct{})
	o := New(cfg, store, col.add, nil)
	t.Cleanup(func() { o.Close(); store.Close() })

	data := pngFixture(t)
	recs := o.Enqueue(context.Background(), []models.RawUpload{
		{
			Name: "slow.png",
			MIME: "image/png",
			Size: int64(len(data)),
			Open: func() (io.ReadCloser, error) {
				<-gate // hold the pipeline until the record is gone
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		},
	})

	o.Remove(recs[0].ID)
	close(gate)
	o.Wait()

	assert.Empty(t, col.all(), "discarded record fires no callback")
	_, ok := store.Get(recs[0].ID)
	assert.False(t, ok)

	succeeded, failed := o.Counts()
	assert.Zero(t, succeeded, "a discarded result is not a success")
	assert.Zero(t, failed)
}

func TestCallback_SlowConsumerDoesNotStallSiblings(t *testing.T) {
	gate := make(chan struct{})
	o, store := newTestOrchestrator(t, func(models.NormalizedPhoto) {
		<-gate // consumer stuck on a slow collaborator
	})

	data := pngFixture(t)
	recs := o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("a.png", "image/png", data),
		models.NewRawUpload("b.png", "image/png", data),
		models.NewRawUpload("c.png", "image/png", data),
	})
	require.Len(t, recs, 3)

	// Every record must settle while the first callback is still blocked;
	// consumer latency must never hold up status updates.
	require.Eventually(t, func() bool {
		for _, r := range store.List() {
			if !r.Status.IsTerminal() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	close(gate)
	o.Wait()
}

// fakeArchiver records stored keys; exists simulates an already-archived
// object.
type fakeArchiver struct {
	mu     sync.Mutex
	exists bool
	stored []string
}

func (f *fakeArchiver) Store(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, key)
	return nil
}

func (f *fakeArchiver) Exists(ctx context.Context, key string) (bool, error) {
	return f.exists, nil
}

func (f *fakeArchiver) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stored...)
}

func TestArchive_StoresOriginal(t *testing.T) {
	far := &fakeArchiver{}
	store := lifecycle.NewStore()
	cfg := config.PipelineConfig{Concurrency: 1, PreviewDir: t.TempDir()}
	o := New(cfg, store, nil, far)
	t.Cleanup(func() { o.Close(); store.Close() })

	o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("pic.png", "image/png", pngFixture(t)),
	})
	o.Wait()

	keys := far.keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], ".png")
}

func TestArchive_SkipsAlreadyStoredKey(t *testing.T) {
	far := &fakeArchiver{exists: true}
	store := lifecycle.NewStore()
	cfg := config.PipelineConfig{Concurrency: 1, PreviewDir: t.TempDir()}
	o := New(cfg, store, nil, far)
	t.Cleanup(func() { o.Close(); store.Close() })

	o.Enqueue(context.Background(), []models.RawUpload{
		models.NewRawUpload("pic.png", "image/png", pngFixture(t)),
	})
	o.Wait()

	assert.Empty(t, far.keys(), "an already-archived object is not re-uploaded")

	recs := store.List()
	require.Len(t, recs, 1)
	assert.Equal(t, lifecycle.StatusSuccess, recs[0].Status)
}
