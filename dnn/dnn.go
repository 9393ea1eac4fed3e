// Package dnn - Object detector backed by the OpenCV DNN module (Darknet YOLO or ONNX).
package dnn

import (
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/detection"
)

// Detector runs a YOLO-style network on frames.
type Detector struct {
	config      Config
	mu          sync.Mutex
	net         gocv.Net
	outputNames []string
	closed      bool
}

// NewDetector loads the network and selects its backend and target.
//
// Arguments:
//   - config: The model files, compute backend and input size.
//
// Returns:
//   - *Detector: The detector, to be closed by the caller.
//   - error: An error if a model file is missing or OpenCV cannot parse it.
//
// @example
//
//	det, err := dnn.NewDetector(dnn.Config{ModelPath: "yolov4-tiny.weights", ConfigPath: "yolov4-tiny.cfg"})
//	if err != nil {
//		return err
//	}
//	defer det.Close()
func NewDetector(config Config) (*Detector, error) {
	if config.InputShape == (image.Point{}) {
		config.InputShape = DefaultInputShape
	}
	if config.InputShape.X <= 0 || config.InputShape.Y <= 0 {
		return nil, errors.Errorf("invalid network input size %v", config.InputShape)
	}

	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}

	for _, path := range []string{config.ModelPath, config.ConfigPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrap(err, "model file")
		}
	}
	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load model %s", config.ModelPath)
	}

	if config.Backend != "" {
		net.SetPreferableBackend(gocv.ParseNetBackend(config.Backend))
	}
	if config.Target != "" {
		net.SetPreferableTarget(gocv.ParseNetTarget(config.Target))
	}

	names := outputLayerNames(&net)
	if len(names) == 0 {
		net.Close()
		return nil, errors.Errorf("model %s has no output layers", config.ModelPath)
	}

	return &Detector{
		config:      config,
		net:         net,
		outputNames: names,
	}, nil
}

// outputLayerNames resolves the unconnected output layer ids to names. Layer ids are
// 1-based indexes into the layer name list.
func outputLayerNames(net *gocv.Net) []string {
	layers := net.GetLayerNames()
	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		if id >= 1 && id <= len(layers) {
			names = append(names, layers[id-1])
		}
	}
	return names
}

// OutputNames returns the names of the layers read on every forward pass.
func (d *Detector) OutputNames() []string {
	return d.outputNames
}

// Detect implements detection.Detector. Boxes are in img's pixel coordinates and
// detections come back in descending confidence order.
func (d *Detector) Detect(img gocv.Mat, confidenceThreshold, nmsThreshold float32) ([]detection.Detection, error) {
	if img.Empty() {
		return nil, errors.New("cannot detect on an empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("detector is closed")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.config.InputShape, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outputs := d.net.ForwardLayers(d.outputNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	var candidates []detection.Detection
	for i, out := range outputs {
		dets, err := decodeRows(out, img.Cols(), img.Rows(), confidenceThreshold)
		if err != nil {
			return nil, errors.WithMessagef(err, "decode output %s", d.outputNames[i])
		}
		candidates = append(candidates, dets...)
	}
	return suppress(candidates, confidenceThreshold, nmsThreshold), nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

var _ detection.Detector = (*Detector)(nil)
