package music

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Source is one track's playable audio. It is exclusively owned by the
// playing guild's orchestrator and discarded per track, never reused.
type Source interface {
	// ReadPacket returns the next opus packet, or io.EOF at end of stream.
	ReadPacket() ([]byte, error)

	// Restart reopens the stream at the given position with a new volume.
	Restart(ctx context.Context, at time.Duration, volume float64) error

	Close() error
}

// SourceFactory opens a volume-adjustable Source for a media reference,
// performing any just-in-time extraction.
type SourceFactory interface {
	Open(ctx context.Context, ref MediaReference, volume float64) (Source, error)
}

// FFmpegSourceFactory extracts a stream URL and pipes it through ffmpeg
// into ogg/opus suitable for the voice transport.
type FFmpegSourceFactory struct {
	Extractor *Extractor
}

func NewFFmpegSourceFactory() *FFmpegSourceFactory {
	return &FFmpegSourceFactory{Extractor: NewExtractor()}
}

func (f *FFmpegSourceFactory) Open(ctx context.Context, ref MediaReference, volume float64) (Source, error) {
	extractor := f.Extractor
	if extractor == nil {
		extractor = NewExtractor()
	}

	streamURL, err := extractor.StreamURL(ctx, ref)
	if err != nil {
		return nil, err
	}

	src := &ffmpegSource{streamURL: streamURL}
	if err := src.start(0, volume); err != nil {
		return nil, err
	}
	return src, nil
}

type ffmpegSource struct {
	streamURL string

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stdout  io.ReadCloser
	reader  *bufio.Reader
	pending [][]byte
}

func (s *ffmpegSource) start(at time.Duration, volume float64) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
	}
	if at > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", at.Seconds()))
	}
	args = append(args,
		"-i", s.streamURL,
		"-af", fmt.Sprintf("volume=%.2f", volume),
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", "96k",
		"-vbr", "on",
		"-frame_duration", "20",
		"-application", "audio",
		"-f", "ogg",
		"-loglevel", "warning",
		"pipe:1",
	)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.stdout = stdout
	s.reader = bufio.NewReaderSize(stdout, 65536)
	s.pending = nil
	return nil
}

func (s *ffmpegSource) ReadPacket() ([]byte, error) {
	for {
		if len(s.pending) > 0 {
			pkt := s.pending[0]
			s.pending = s.pending[1:]
			if len(pkt) == 0 {
				continue
			}
			return pkt, nil
		}

		page, err := readOggPage(s.reader)
		if err != nil {
			return nil, err
		}
		if page.isHeader {
			continue
		}
		s.pending = page.packets
	}
}

func (s *ffmpegSource) Restart(ctx context.Context, at time.Duration, volume float64) error {
	s.stop()
	return s.start(at, volume)
}

func (s *ffmpegSource) Close() error {
	s.stop()
	return nil
}

func (s *ffmpegSource) stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	if s.stdout != nil {
		_ = s.stdout.Close()
		s.stdout = nil
	}
	s.reader = nil
	s.pending = nil
}

type oggPage struct {
	isHeader bool
	packets  [][]byte
}

func readOggPage(reader *bufio.Reader) (*oggPage, error) {
	if reader == nil {
		return nil, io.EOF
	}
	if err := syncToOggPage(reader); err != nil {
		return nil, err
	}

	headerRest := make([]byte, 23)
	if _, err := io.ReadFull(reader, headerRest); err != nil {
		return nil, err
	}

	headerType := headerRest[1]
	pageSegments := headerRest[22]

	segmentTable := make([]byte, pageSegments)
	if _, err := io.ReadFull(reader, segmentTable); err != nil {
		return nil, err
	}

	pageSize := 0
	for _, seg := range segmentTable {
		pageSize += int(seg)
	}

	pageData := make([]byte, pageSize)
	if _, err := io.ReadFull(reader, pageData); err != nil {
		return nil, err
	}

	isHeader := headerType&0x02 != 0
	if len(pageData) >= 8 {
		magic := string(pageData[:8])
		if magic == "OpusHead" || magic == "OpusTags" {
			isHeader = true
		}
	}

	return &oggPage{
		isHeader: isHeader,
		packets:  extractPacketsFromPage(segmentTable, pageData),
	}, nil
}

func syncToOggPage(reader *bufio.Reader) error {
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return err
		}

		if b != 'O' {
			continue
		}

		peek, err := reader.Peek(3)
		if err != nil {
			return err
		}

		if string(peek) == "ggS" {
			reader.Discard(3)
			return nil
		}
	}
}

func extractPacketsFromPage(segmentTable []byte, pageData []byte) [][]byte {
	var packets [][]byte
	var currentPacket []byte
	offset := 0

	for _, segSize := range segmentTable {
		size := int(segSize)
		if offset+size > len(pageData) {
			break
		}

		currentPacket = append(currentPacket, pageData[offset:offset+size]...)
		offset += size

		if segSize < 255 {
			if len(currentPacket) > 0 {
				packet := make([]byte, len(currentPacket))
				copy(packet, currentPacket)
				packets = append(packets, packet)
				currentPacket = currentPacket[:0]
			}
		}
	}

	if len(currentPacket) > 0 {
		packet := make([]byte, len(currentPacket))
		copy(packet, currentPacket)
		packets = append(packets, packet)
	}

	return packets
}
