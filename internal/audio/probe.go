package audio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/transcriptionsvc/internal/cmdrun"
)

// Info is what the service needs to know about an upload before running it.
type Info struct {
	DurationSec float64
	SampleRate  int
}

// Prober reads duration and sample rate from an audio file.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FileProber parses WAV headers directly and asks ffprobe about every other
// container.
type FileProber struct {
	ffprobe string
	runner  cmdrun.Runner
}

func NewFileProber(ffprobeBin string, runner cmdrun.Runner) *FileProber {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}
	return &FileProber{ffprobe: ffprobeBin, runner: runner}
}

func (p *FileProber) Probe(ctx context.Context, path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if st.Size() == 0 {
		return Info{}, fmt.Errorf("%w: empty file", ErrUndecodable)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		f, err := os.Open(path)
		if err != nil {
			return Info{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		defer f.Close()
		return ParseWAV(f, st.Size())
	}
	return p.probeFFprobe(ctx, path)
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FileProber) probeFFprobe(ctx context.Context, path string) (Info, error) {
	res, err := p.runner.Run(ctx, p.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		var cmdErr *cmdrun.Error
		if errors.As(err, &cmdErr) {
			return Info{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return Info{}, fmt.Errorf("run ffprobe: %w", err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return Info{}, fmt.Errorf("%w: parse ffprobe output: %v", ErrUndecodable, err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		rate, err := strconv.Atoi(s.SampleRate)
		if err != nil || rate <= 0 {
			return Info{}, fmt.Errorf("%w: invalid sample rate %q", ErrUndecodable, s.SampleRate)
		}
		raw := out.Format.Duration
		if raw == "" {
			raw = s.Duration
		}
		dur, err := strconv.ParseFloat(raw, 64)
		if err != nil || dur < 0 {
			return Info{}, fmt.Errorf("%w: invalid duration %q", ErrUndecodable, raw)
		}
		return Info{DurationSec: dur, SampleRate: rate}, nil
	}
	return Info{}, fmt.Errorf("%w: no audio stream", ErrUndecodable)
}

// ParseWAV walks the RIFF chunks of a WAV file. size is the total file size
// and bounds a data chunk whose declared length is bogus (streamed writers).
func ParseWAV(r io.Reader, size int64) (Info, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Info{}, fmt.Errorf("%w: short RIFF header", ErrUndecodable)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUndecodable)
	}

	var (
		offset     int64 = 12
		sampleRate uint32
		byteRate   uint32
		haveFmt    bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return Info{}, fmt.Errorf("%w: missing data chunk", ErrUndecodable)
		}
		offset += 8
		id := string(ch[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if chunkSize < 16 {
				return Info{}, fmt.Errorf("%w: fmt chunk too small", ErrUndecodable)
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return Info{}, fmt.Errorf("%w: truncated fmt chunk", ErrUndecodable)
			}
			sampleRate = binary.LittleEndian.Uint32(fmtChunk[4:8])
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			haveFmt = true
			if err := skip(r, chunkSize-16+chunkSize%2); err != nil {
				return Info{}, err
			}
		case "data":
			if !haveFmt {
				return Info{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrUndecodable)
			}
			if sampleRate == 0 || byteRate == 0 {
				return Info{}, fmt.Errorf("%w: zero sample rate", ErrUndecodable)
			}
			if remaining := size - offset; chunkSize > remaining {
				chunkSize = remaining
			}
			return Info{
				DurationSec: float64(chunkSize) / float64(byteRate),
				SampleRate:  int(sampleRate),
			}, nil
		default:
			if err := skip(r, chunkSize+chunkSize%2); err != nil {
				return Info{}, err
			}
		}
		offset += chunkSize + chunkSize%2
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("%w: truncated chunk", ErrUndecodable)
	}
	return nil
}
