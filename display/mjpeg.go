package display

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"goji.io"
	"goji.io/pat"
	"gocv.io/x/gocv"
)

const (
	// DefaultJPEGQuality is used when MJPEGOptions.Quality is zero.
	DefaultJPEGQuality = 80

	shutdownTimeout = 5 * time.Second
)

// MJPEGOptions configures the browser preview.
type MJPEGOptions struct {
	// MaxWidth downscales wider frames, keeping the aspect ratio. Zero keeps the
	// original size.
	MaxWidth int
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// MJPEG serves the most recent frame to any number of browsers.
//
// Routes:
//   - GET /stream.mjpg: multipart/x-mixed-replace stream of JPEG frames.
//   - GET /snapshot.jpg: the latest frame, 503 before the first one.
//   - GET /healthz: liveness.
//
// Show never blocks on viewers: each viewer holds at most one pending frame and
// slow viewers skip frames.
type MJPEG struct {
	options MJPEGOptions
	logger  *zap.Logger

	mu      sync.Mutex
	latest  []byte
	frames  uint64
	viewers map[chan []byte]struct{}
	closed  bool
}

// NewMJPEG creates a preview surface.
func NewMJPEG(options MJPEGOptions, logger *zap.Logger) *MJPEG {
	if options.Quality <= 0 || options.Quality > 100 {
		options.Quality = DefaultJPEGQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MJPEG{
		options: options,
		logger:  logger,
		viewers: make(map[chan []byte]struct{}),
	}
}

// Show encodes the frame and hands it to every connected viewer.
func (m *MJPEG) Show(img gocv.Mat) error {
	jpg, err := m.encode(img)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("mjpeg preview is closed")
	}
	m.latest = jpg
	m.frames++
	for ch := range m.viewers {
		// Replace a frame the viewer has not picked up yet.
		select {
		case <-ch:
		default:
		}
		ch <- jpg
	}
	return nil
}

// Frames returns the number of frames shown.
func (m *MJPEG) Frames() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Viewers returns the number of connected stream viewers.
func (m *MJPEG) Viewers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.viewers)
}

// Close disconnects every viewer. Later calls to Show fail.
func (m *MJPEG) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for ch := range m.viewers {
		close(ch)
		delete(m.viewers, ch)
	}
	return nil
}

// Handler returns the preview routes with CORS enabled for any origin.
func (m *MJPEG) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/stream.mjpg"), m.serveStream)
	mux.HandleFunc(pat.Get("/snapshot.jpg"), m.serveSnapshot)
	mux.HandleFunc(pat.Get("/healthz"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	return cors.AllowAll().Handler(mux)
}

// Serve listens on addr until ctx is cancelled, then shuts the server down and
// disconnects the viewers.
func (m *MJPEG) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		m.logger.Info("serving preview", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "serve preview on %s", addr)
	case <-ctx.Done():
	}

	_ = m.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shut down preview")
	}
	return nil
}

func (m *MJPEG) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	jpg := m.latest
	m.mu.Unlock()

	if jpg == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(jpg)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(jpg)
}

func (m *MJPEG) serveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, latest, err := m.subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer m.unsubscribe(ch)

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	m.logger.Debug("preview viewer connected", zap.String("remote", r.RemoteAddr))
	defer m.logger.Debug("preview viewer disconnected", zap.String("remote", r.RemoteAddr))

	if latest != nil {
		if err := writePart(mw, latest); err != nil {
			return
		}
		flusher.Flush()
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case jpg, ok := <-ch:
			if !ok {
				return
			}
			if err := writePart(mw, jpg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (m *MJPEG) subscribe() (chan []byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, errors.New("mjpeg preview is closed")
	}
	ch := make(chan []byte, 1)
	m.viewers[ch] = struct{}{}
	return ch, m.latest, nil
}

func (m *MJPEG) unsubscribe(ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.viewers[ch]; ok {
		delete(m.viewers, ch)
		close(ch)
	}
}

func writePart(mw *multipart.Writer, jpg []byte) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":   {"image/jpeg"},
		"Content-Length": {strconv.Itoa(len(jpg))},
	})
	if err != nil {
		return err
	}
	_, err = part.Write(jpg)
	return err
}

// encode downscales the frame to MaxWidth when it is wider and JPEG-encodes it.
func (m *MJPEG) encode(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, errors.New("cannot encode an empty frame")
	}
	if m.options.MaxWidth <= 0 || img.Cols() <= m.options.MaxWidth {
		return m.encodeJPEG(img)
	}

	src, err := img.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert frame for preview")
	}
	scaled := resize.Resize(uint(m.options.MaxWidth), 0, src, resize.Bilinear)
	small, err := gocv.ImageToMatRGB(scaled)
	if err != nil {
		return nil, errors.Wrap(err, "convert scaled preview")
	}
	defer small.Close()
	return m.encodeJPEG(small)
}

func (m *MJPEG) encodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, m.options.Quality})
	if err != nil {
		return nil, errors.Wrap(err, "encode preview frame")
	}
	defer buf.Close()

	// The native buffer is freed on Close, so keep a Go copy.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
