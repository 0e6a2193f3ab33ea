package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultIIORoot is where Linux exposes industrial I/O devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

var ErrNoSensor = errors.New("no pressure sensor")

// Source reads atmospheric pressure in hPa.
type Source interface {
	Name() string
	Read() (float32, error)
}

// IIOSource reads a barometer through the Linux IIO sysfs interface. The
// kernel reports pressure in kPa, either directly in in_pressure_input or
// as in_pressure_raw scaled by in_pressure_scale.
type IIOSource struct {
	dir string
}

// FindIIOSource returns the device at path if set, otherwise the first
// device under root that exposes a pressure channel.
func FindIIOSource(root, path string) (*IIOSource, error) {
	if path != "" {
		if !hasPressureChannel(path) {
			return nil, fmt.Errorf("%w at %s", ErrNoSensor, path)
		}
		return &IIOSource{dir: path}, nil
	}

	if root == "" {
		root = DefaultIIORoot
	}
	devices, err := filepath.Glob(filepath.Join(root, "iio:device*"))
	if err != nil {
		return nil, err
	}
	for _, dir := range devices {
		if hasPressureChannel(dir) {
			return &IIOSource{dir: dir}, nil
		}
	}
	return nil, ErrNoSensor
}

func hasPressureChannel(dir string) bool {
	for _, name := range []string{"in_pressure_input", "in_pressure_raw"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// Name returns the IIO device directory name.
func (s *IIOSource) Name() string { return filepath.Base(s.dir) }

// Read returns the current pressure in hPa.
func (s *IIOSource) Read() (float32, error) {
	kpa, err := readSysfsFloat(filepath.Join(s.dir, "in_pressure_input"))
	if errors.Is(err, os.ErrNotExist) {
		raw, rawErr := readSysfsFloat(filepath.Join(s.dir, "in_pressure_raw"))
		if rawErr != nil {
			return 0, rawErr
		}
		scale, scaleErr := readSysfsFloat(filepath.Join(s.dir, "in_pressure_scale"))
		if scaleErr != nil {
			scale = 1
		}
		kpa, err = raw*scale, nil
	}
	if err != nil {
		return 0, err
	}
	return float32(kpa * 10), nil
}

func readSysfsFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// DemoSource oscillates gently around standard sea level pressure.
type DemoSource struct {
	mu   sync.Mutex
	step float64
}

// NewDemoSource creates a simulated barometer.
func NewDemoSource() *DemoSource { return &DemoSource{} }

func (d *DemoSource) Name() string { return "demo" }

// Read returns the next simulated pressure in hPa.
func (d *DemoSource) Read() (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.step++
	return float32(1013.25 + 2*math.Sin(d.step/10)), nil
}
