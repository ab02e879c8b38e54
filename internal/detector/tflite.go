package detector

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// TFLiteConfig locates an SSD MobileNet model and its runtime options.
type TFLiteConfig struct {
	// ModelPath is the .tflite file. An "@device" suffix selects an Edge
	// TPU by index or device path.
	ModelPath string

	// EdgeTPU attaches the Edge TPU delegate.
	EdgeTPU bool

	// Threads is the interpreter thread count; zero leaves the default.
	Threads int

	// Labels names the model's class ids.
	Labels Labels
}

// TFLiteDetector implements Detector with a TensorFlow Lite SSD model whose
// outputs are boxes, class ids, scores and a count.
type TFLiteDetector struct {
	config   Config
	labels   Labels
	model    *tflite.Model
	options  *tflite.InterpreterOptions
	interp   *tflite.Interpreter
	delegate *edgetpu.Delegate
	device   string
	path     string

	inputW, inputH int
	mu             sync.Mutex
}

// NewTFLiteDetector loads the model and allocates its tensors.
func NewTFLiteDetector(tc TFLiteConfig, config Config) (*TFLiteDetector, error) {
	path, device, _ := strings.Cut(tc.ModelPath, "@")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("stat model: %w", err)
	}

	d := &TFLiteDetector{config: config, labels: tc.Labels, device: device, path: path}

	d.model = tflite.NewModelFromFile(path)
	if d.model == nil {
		return nil, fmt.Errorf("load model %s", filepath.Base(path))
	}

	d.options = tflite.NewInterpreterOptions()
	if tc.Threads > 0 {
		d.options.SetNumThread(tc.Threads)
	}
	d.options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Error().Str("component", "tflite").Msg(msg)
	}, nil)

	if tc.EdgeTPU {
		delegate, err := openEdgeTPU(device)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.delegate = delegate
		d.options.AddDelegate(delegate)
	}

	d.interp = tflite.NewInterpreter(d.model, d.options)
	if d.interp == nil {
		d.Close()
		return nil, fmt.Errorf("create interpreter")
	}
	if status := d.interp.AllocateTensors(); status != tflite.OK {
		d.Close()
		return nil, fmt.Errorf("allocate tensors: status %d", status)
	}

	input := d.interp.GetInputTensor(0)
	d.inputH, d.inputW = input.Dim(1), input.Dim(2)

	return d, nil
}

// openEdgeTPU picks the device named by sel, or the first one when sel is empty.
func openEdgeTPU(sel string) (*edgetpu.Delegate, error) {
	devices, err := edgetpu.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("list edge tpu devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no edge tpu devices found")
	}

	device := devices[0]
	if sel != "" {
		found := false
		if idx, err := strconv.Atoi(sel); err == nil && idx >= 0 && idx < len(devices) {
			device, found = devices[idx], true
		}
		for _, d := range devices {
			if !found && d.Path == sel {
				device, found = d, true
			}
		}
		if !found {
			return nil, fmt.Errorf("edge tpu device %q not found", sel)
		}
	}

	delegate := edgetpu.New(device)
	if delegate == nil {
		return nil, fmt.Errorf("open edge tpu %s", device.Path)
	}
	return delegate, nil
}

// Detect runs the model on frame and returns filtered detections in frame
// pixel coordinates.
func (d *TFLiteDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return nil, nil
	}

	scale, err := d.setInput(frame)
	if err != nil {
		return nil, err
	}

	if status := d.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("invoke: status %d", status)
	}

	boxes := d.interp.GetOutputTensor(0).Float32s()
	classes := d.interp.GetOutputTensor(1).Float32s()
	scores := d.interp.GetOutputTensor(2).Float32s()
	counts := d.interp.GetOutputTensor(3).Float32s()
	if len(counts) == 0 {
		return nil, fmt.Errorf("model returned no detection count")
	}

	count := int(counts[0])
	count = min(count, len(scores), len(classes), len(boxes)/4)

	dets := make([]Detection, 0, count)
	for i := 0; i < count; i++ {
		dets = append(dets, Detection{
			ClassID: int(classes[i]),
			Score:   float64(scores[i]),
			Box:     scaleBox(boxes[4*i], boxes[4*i+1], boxes[4*i+2], boxes[4*i+3], d.inputW, d.inputH, scale),
		})
	}
	return Filter(dets, d.config, d.labels), nil
}

// setInput copies a resized, zero-padded RGB version of frame into the input
// tensor and returns the resize ratio.
func (d *TFLiteDetector) setInput(frame *gocv.Mat) (float64, error) {
	w, h := frame.Cols(), frame.Rows()
	scale := min(float64(d.inputW)/float64(w), float64(d.inputH)/float64(h))
	sw, sh := int(float64(w)*scale), int(float64(h)*scale)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(*frame, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(sw, sh), 0, 0, gocv.InterpolationArea)

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(resized, &padded, 0, d.inputH-sh, 0, d.inputW-sw, gocv.BorderConstant, color.RGBA{})

	input := d.interp.GetInputTensor(0)
	switch input.Type() {
	case tflite.UInt8:
		if status := input.CopyFromBuffer(padded.ToBytes()); status != tflite.OK {
			return 0, fmt.Errorf("copy input: status %d", status)
		}
	case tflite.Float32:
		f := gocv.NewMat()
		defer f.Close()
		padded.ConvertToWithParams(&f, gocv.MatTypeCV32FC3, 1.0/127.5, -1)
		data, err := f.DataPtrFloat32()
		if err != nil {
			return 0, fmt.Errorf("float input: %w", err)
		}
		if status := input.CopyFromBuffer(data); status != tflite.OK {
			return 0, fmt.Errorf("copy input: status %d", status)
		}
	default:
		return 0, fmt.Errorf("unsupported input tensor type %v", input.Type())
	}
	return scale, nil
}

// Describe reports the model's input and output tensors for info mode.
func (d *TFLiteDetector) Describe() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	lines := []string{"Model: " + d.path}
	if d.delegate != nil {
		lines = append(lines, "Delegate: edgetpu "+d.device)
	}
	for i := 0; i < d.interp.GetInputTensorCount(); i++ {
		lines = append(lines, "Model input: "+describeTensor(d.interp.GetInputTensor(i)))
	}
	for i := 0; i < d.interp.GetOutputTensorCount(); i++ {
		lines = append(lines, "Model output: "+describeTensor(d.interp.GetOutputTensor(i)))
	}
	return lines
}

func describeTensor(t *tflite.Tensor) string {
	dims := make([]string, t.NumDims())
	for i := range dims {
		dims[i] = strconv.Itoa(t.Dim(i))
	}
	return fmt.Sprintf("%s [%s] type=%v", t.Name(), strings.Join(dims, " "), t.Type())
}

// Close releases the interpreter, delegate and model.
func (d *TFLiteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interp != nil {
		d.interp.Delete()
		d.interp = nil
	}
	if d.options != nil {
		d.options.Delete()
		d.options = nil
	}
	if d.delegate != nil {
		d.delegate.Delete()
		d.delegate = nil
	}
	if d.model != nil {
		d.model.Delete()
		d.model = nil
	}
	return nil
}
