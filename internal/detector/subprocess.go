package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultIdleTimeout is how long an unused subprocess is kept alive.
const DefaultIdleTimeout = 30 * time.Second

// SubprocessDetector implements Detector by streaming frames to an external
// inference process. Each request is a 4-byte big-endian length followed by
// a JPEG frame on stdin; each response is one JSON line on stdout.
type SubprocessDetector struct {
	config      Config
	labels      Labels
	argv        []string
	idleTimeout time.Duration

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewSubprocessDetector creates a detector that runs argv.
// The process is started lazily on first detection.
func NewSubprocessDetector(argv []string, labels Labels, config Config) (*SubprocessDetector, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("detector command is empty")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("detector command: %w", err)
	}

	return &SubprocessDetector{
		config:      config,
		labels:      labels,
		argv:        argv,
		idleTimeout: DefaultIdleTimeout,
	}, nil
}

// Detect sends frame to the subprocess and returns the filtered detections.
func (d *SubprocessDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return nil, nil
	}

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	dets, err := d.roundTrip(buf.GetBytes())
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()

	return Filter(dets, d.config, d.labels), nil
}

// roundTrip writes one framed request and decodes the reply line.
func (d *SubprocessDetector) roundTrip(data []byte) ([]Detection, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return decodeResponse([]byte(line))
}

// Close shuts down the subprocess.
func (d *SubprocessDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// Describe reports the command backing this detector.
func (d *SubprocessDetector) Describe() []string {
	return []string{fmt.Sprintf("Model: subprocess %q", d.argv)}
}

func (d *SubprocessDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.argv[0], d.argv[1:]...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start detector process: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

func (d *SubprocessDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *SubprocessDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.idleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

// jsonDetection is one object in a subprocess response. Box is
// [xmin, ymin, xmax, ymax] in frame pixels.
type jsonDetection struct {
	ClassID int        `json:"class_id"`
	Label   string     `json:"label"`
	Score   float64    `json:"score"`
	Box     [4]float64 `json:"box"`
}

func (j jsonDetection) toDetection() Detection {
	return Detection{
		ClassID: j.ClassID,
		Label:   j.Label,
		Score:   j.Score,
		Box:     image.Rect(int(j.Box[0]), int(j.Box[1]), int(j.Box[2]), int(j.Box[3])),
	}
}

func decodeResponse(line []byte) ([]Detection, error) {
	var response struct {
		Detections []jsonDetection `json:"detections"`
		Error      string          `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("detector process: %s", response.Error)
	}

	result := make([]Detection, len(response.Detections))
	for i, j := range response.Detections {
		result[i] = j.toDetection()
	}
	return result, nil
}
