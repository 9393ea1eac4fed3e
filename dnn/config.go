package dnn

import "image"

// Config describes the network to load.
type Config struct {
	// ModelPath is the weights file: Darknet ".weights" or ".onnx". ONNX exports must
	// emit YOLO rows [cx, cy, w, h, objectness, scores...] with normalised coordinates.
	ModelPath string
	// ConfigPath is the Darknet ".cfg"; empty for ONNX models.
	ConfigPath string
	// Backend is an OpenCV DNN backend name such as "default", "opencv" or "cuda".
	Backend string
	// Target is an OpenCV DNN target name such as "cpu", "cuda" or "cuda-fp16".
	Target string
	// InputShape is the network input size, 416x416 when zero.
	InputShape image.Point
}

// DefaultInputShape is the YOLOv4-tiny input size.
var DefaultInputShape = image.Point{X: 416, Y: 416}
