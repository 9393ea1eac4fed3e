// Package config - Pipeline knobs and application configuration.
//
// Configuration starts from Default(), is optionally overlaid by a JSON5 file (comments and
// trailing commas allowed) and is finally overridden by command-line flags.
package config

import (
	"image/color"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// DefaultPalette is the colour cycle used to draw detections; class ids wrap around it.
var DefaultPalette = []color.RGBA{
	{R: 0, G: 255, B: 0, A: 0},
	{R: 255, G: 0, B: 0, A: 0},
	{R: 0, G: 0, B: 255, A: 0},
	{R: 0, G: 255, B: 255, A: 0},
	{R: 255, G: 0, B: 255, A: 0},
	{R: 255, G: 255, B: 0, A: 0},
}

// Pipeline holds the per-frame detection knobs. It is read-only once a run starts.
type Pipeline struct {
	// ConfidenceThreshold drops detections scoring below it.
	ConfidenceThreshold float32 `json:"confidence_threshold"`
	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold float32 `json:"nms_threshold"`
	// Palette is the ordered colour cycle for boxes and labels.
	Palette []color.RGBA `json:"palette"`
}

// DefaultPipeline returns the thresholds and palette the detector was tuned with.
func DefaultPipeline() Pipeline {
	palette := make([]color.RGBA, len(DefaultPalette))
	copy(palette, DefaultPalette)
	return Pipeline{
		ConfidenceThreshold: 0.4,
		NMSThreshold:        0.4,
		Palette:             palette,
	}
}

// Validate checks the thresholds are probabilities and the palette is usable.
func (p Pipeline) Validate() error {
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return errors.Errorf("confidence threshold %v must be between 0 and 1", p.ConfidenceThreshold)
	}
	if p.NMSThreshold < 0 || p.NMSThreshold > 1 {
		return errors.Errorf("nms threshold %v must be between 0 and 1", p.NMSThreshold)
	}
	if len(p.Palette) == 0 {
		return errors.New("palette must have at least one colour")
	}
	return nil
}

// Model locates the detection network and selects where it runs.
type Model struct {
	Weights     string `json:"weights"`
	Config      string `json:"config"`
	Labels      string `json:"labels"`
	Backend     string `json:"backend"`
	Target      string `json:"target"`
	InputWidth  int    `json:"input_width"`
	InputHeight int    `json:"input_height"`
}

// Camera selects the live capture device.
type Camera struct {
	Index int `json:"index"`
	// Width, Height and FPS are requested from the device when non-zero.
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// Recording configures the on-disk video writer used in record mode.
type Recording struct {
	Dir       string  `json:"dir"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FPS       float64 `json:"fps"`
	Codec     string  `json:"codec"`
	Extension string  `json:"extension"`
}

// Display selects the surface annotated frames are presented on.
type Display struct {
	// Kind is one of "window", "mjpeg" or "none".
	Kind  string `json:"kind"`
	Title string `json:"title"`
	// Listen is the preview server address for the mjpeg surface.
	Listen string `json:"listen"`
	// MaxWidth downscales preview frames wider than it; 0 disables downscaling.
	MaxWidth int `json:"max_width"`
}

// Log configures the process logger.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// App is the complete application configuration.
type App struct {
	Pipeline      Pipeline      `json:"pipeline"`
	Model         Model         `json:"model"`
	Camera        Camera        `json:"camera"`
	Recording     Recording     `json:"recording"`
	Display       Display       `json:"display"`
	Log           Log           `json:"log"`
	StatsInterval time.Duration `json:"stats_interval"`
}

// Default returns the configuration used when no file or flag says otherwise.
func Default() App {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return App{
		Pipeline: DefaultPipeline(),
		Model: Model{
			Weights:     "yolov4-tiny.weights",
			Config:      "yolov4-tiny.cfg",
			Labels:      "classes.txt",
			Backend:     "default",
			Target:      "cpu",
			InputWidth:  416,
			InputHeight: 416,
		},
		Camera: Camera{Index: 0},
		Recording: Recording{
			Dir:       wd,
			Width:     640,
			Height:    480,
			FPS:       10,
			Codec:     "XVID",
			Extension: "avi",
		},
		Display: Display{
			Kind:     "window",
			Title:    "Object Detection",
			Listen:   "127.0.0.1:8080",
			MaxWidth: 0,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		StatsInterval: 0,
	}
}

// Validate checks the parts of the configuration every mode depends on.
func (a App) Validate() error {
	if err := a.Pipeline.Validate(); err != nil {
		return err
	}
	if a.Model.InputWidth <= 0 || a.Model.InputHeight <= 0 {
		return errors.Errorf("model input size %dx%d must be positive", a.Model.InputWidth, a.Model.InputHeight)
	}
	if a.Camera.Index < 0 {
		return errors.Errorf("camera index %d must not be negative", a.Camera.Index)
	}
	if len(a.Recording.Codec) != 4 {
		return errors.Errorf("recording codec %q must be a four character code", a.Recording.Codec)
	}
	switch a.Display.Kind {
	case "window", "mjpeg", "none":
	default:
		return errors.Errorf("display kind %q must be window, mjpeg or none", a.Display.Kind)
	}
	if a.StatsInterval < 0 {
		return errors.Errorf("stats interval %v must not be negative", a.StatsInterval)
	}
	return nil
}

// Load reads a JSON5 configuration file over Default().
//
// Keys missing from the file keep their defaults. Values are weakly typed, so "0.5" and
// 0.5 are both accepted for a threshold, durations are written like "5s" and palette
// colours like "#00ff00".
//
// Arguments:
//   - path: Path to the configuration file.
//
// Returns:
//   - App: The merged configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (App, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	var raw map[string]interface{}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	// Slices decode element-wise over existing values; a palette in the file replaces the
	// default one instead of overwriting its first entries.
	if pipeline, ok := raw["pipeline"].(map[string]interface{}); ok {
		if _, ok := pipeline["palette"]; ok {
			cfg.Pipeline.Palette = nil
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			colorHook,
		),
	})
	if err != nil {
		return cfg, errors.Wrap(err, "create config decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// colorHook turns "#rrggbb" strings into palette colours.
func colorHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(color.RGBA{}) {
		return data, nil
	}
	return ParseColor(data.(string))
}

// ParseColor parses a "#rrggbb" (or "rrggbb") hex colour.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, errors.Errorf("invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, errors.Wrapf(err, "invalid hex colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
