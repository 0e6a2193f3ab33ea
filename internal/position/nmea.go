package position

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const defaultBaudRate = 9600

// NMEAConfig configures a serial NMEA 0183 receiver.
type NMEAConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// NMEAReader reads RMC and GGA sentences from a UART GPS receiver.
type NMEAReader struct {
	cfg     NMEAConfig
	open    func(NMEAConfig) (io.ReadCloser, error)
	mu      sync.Mutex
	conn    io.ReadCloser
	scanner *bufio.Scanner
	last    Fix
}

// NewNMEAReader creates a reader for cfg.Port, defaulting to 9600 baud.
func NewNMEAReader(cfg NMEAConfig) *NMEAReader {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	return &NMEAReader{cfg: cfg, open: openSerial}
}

// newNMEAReaderFrom builds a reader over an already open stream.
func newNMEAReaderFrom(r io.ReadCloser) *NMEAReader {
	return &NMEAReader{
		open: func(NMEAConfig) (io.ReadCloser, error) { return r, nil },
	}
}

func openSerial(cfg NMEAConfig) (io.ReadCloser, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return port, nil
}

func (n *NMEAReader) Name() string { return "nmea" }

// Connect opens the serial port. It is a no-op while connected.
func (n *NMEAReader) Connect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return nil
	}
	conn, err := n.open(n.cfg)
	if err != nil {
		return err
	}
	n.conn = conn
	n.scanner = bufio.NewScanner(conn)
	return nil
}

// Close releases the serial port.
func (n *NMEAReader) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	n.scanner = nil
	return err
}

// Read consumes sentences until both RMC and GGA have been seen or a line
// budget runs out, and returns the merged fix.
func (n *NMEAReader) Read() (*Fix, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.scanner == nil {
		return nil, errors.New("gps not connected")
	}

	var rmc, gga bool
	for i := 0; i < 20 && !(rmc && gga); i++ {
		if !n.scanner.Scan() {
			err := n.scanner.Err()
			// A stopped scanner never resumes; start over on the next read.
			n.scanner = bufio.NewScanner(n.conn)
			if err != nil && !errors.Is(err, io.ErrNoProgress) {
				return nil, err
			}
			break
		}
		line := strings.TrimSpace(n.scanner.Text())
		switch sentenceType(line) {
		case "RMC":
			rmc = applyRMC(&n.last, line)
		case "GGA":
			gga = applyGGA(&n.last, line)
		}
	}

	fix := n.last
	return &fix, nil
}

// sentenceType returns the three-letter sentence id of a checksummed
// sentence from any talker (GP, GN, GL...), or "" if the line is invalid.
func sentenceType(line string) string {
	if !strings.HasPrefix(line, "$") || !validChecksum(line) {
		return ""
	}
	id := fields(line)[0]
	if len(id) != 5 {
		return ""
	}
	return id[2:]
}

// applyRMC: $xxRMC,time,status,lat,N,lon,E,speed,course,date,...
func applyRMC(fix *Fix, line string) bool {
	f := fields(line)
	if len(f) < 10 {
		return false
	}
	fix.Time = f[1]
	fix.Valid = f[2] == "A"
	if fix.Valid {
		fix.Latitude = parseCoordinate(f[3], f[4])
		fix.Longitude = parseCoordinate(f[5], f[6])
	}
	return true
}

// applyGGA: $xxGGA,time,lat,N,lon,E,quality,sats,hdop,alt,M,...
func applyGGA(fix *Fix, line string) bool {
	f := fields(line)
	if len(f) < 11 {
		return false
	}
	if q, err := strconv.Atoi(f[6]); err == nil {
		fix.Quality = q
	}
	if sats, err := strconv.Atoi(f[7]); err == nil {
		fix.Satellites = sats
	}
	if alt, err := strconv.ParseFloat(f[9], 64); err == nil {
		fix.Altitude = alt
	}
	return true
}

func fields(line string) []string {
	if i := strings.IndexByte(line, '*'); i >= 0 {
		line = line[:i]
	}
	return strings.Split(strings.TrimPrefix(line, "$"), ",")
}

// parseCoordinate converts ddmm.mmmm plus hemisphere to decimal degrees.
func parseCoordinate(raw, hemisphere string) float64 {
	if raw == "" || hemisphere == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	deg := math.Floor(v / 100)
	deg += (v - deg*100) / 60
	if hemisphere == "S" || hemisphere == "W" {
		deg = -deg
	}
	return deg
}

func validChecksum(line string) bool {
	star := strings.IndexByte(line, '*')
	if star < 1 || star+3 > len(line) {
		return false
	}
	var sum byte
	for i := 1; i < star; i++ {
		sum ^= line[i]
	}
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	return err == nil && byte(want) == sum
}
