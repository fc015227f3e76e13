package playback

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/aura-webinar/roombridge/internal/audio"
	"github.com/aura-webinar/roombridge/internal/session"
)

// playURL fetches the resource and routes it to the matching decoder.
// Returns the total published duration in milliseconds.
func (c *Controller) playURL(ctx context.Context, sess *session.Session, req Request, emit func(Event)) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.AudioURL, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fetch audio: HTTP %d", resp.StatusCode)
	}

	sink := newFrameSink(ctx, sess, req, c.progressEvery, emit)

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	url := strings.ToLower(req.AudioURL)
	switch {
	case strings.Contains(contentType, "audio/mpeg") || strings.HasSuffix(url, ".mp3"):
		err = decodeMP3(ctx, resp.Body, sink)
	case strings.Contains(contentType, "audio/wav") ||
		strings.Contains(contentType, "audio/x-wav") ||
		strings.Contains(contentType, "audio/wave") ||
		strings.HasSuffix(url, ".wav"):
		err = decodeWAV(ctx, resp.Body, sink)
	default:
		return 0, fmt.Errorf("unsupported audio format: %q", contentType)
	}
	if err != nil {
		return 0, err
	}
	if err := sink.Flush(); err != nil {
		return 0, err
	}
	return sink.PositionMs(), nil
}

// frameSink accumulates canonical-rate mono samples, publishes them in fixed
// frames, and emits periodic progress. The cancellation check runs before
// every single publish so a stop lands within one frame.
type frameSink struct {
	ctx  context.Context
	sess *session.Session
	req  Request
	emit func(Event)

	frameSamples  int
	progressEvery int

	buf           []int16
	totalSamples  int64
	framesWritten int64
	durationMs    int64 // total, when the container declares it; 0 otherwise
}

func newFrameSink(ctx context.Context, sess *session.Session, req Request, progressEvery int, emit func(Event)) *frameSink {
	return &frameSink{
		ctx:           ctx,
		sess:          sess,
		req:           req,
		emit:          emit,
		frameSamples:  audio.CanonicalRate / 10, // 100 ms frames
		progressEvery: progressEvery,
	}
}

// Push accepts canonical-rate mono samples and publishes full frames.
func (s *frameSink) Push(samples []int16) error {
	if s.req.Volume > 0 && s.req.Volume != 1.0 {
		audio.ApplyGain(samples, s.req.Volume)
	}
	s.buf = append(s.buf, samples...)
	for len(s.buf) >= s.frameSamples {
		if err := s.publish(s.buf[:s.frameSamples]); err != nil {
			return err
		}
		s.buf = s.buf[s.frameSamples:]
	}
	return nil
}

// Flush publishes any remaining partial frame.
func (s *frameSink) Flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	err := s.publish(s.buf)
	s.buf = nil
	return err
}

func (s *frameSink) publish(samples []int16) error {
	if err := s.ctx.Err(); err != nil {
		return ErrCancelled
	}
	frame := audio.Frame{
		PCM:        audio.Int16ToBytes(samples),
		SampleRate: audio.CanonicalRate,
		Channels:   audio.CanonicalChannels,
		UserID:     s.req.UserID,
	}
	if err := s.sess.Publish(frame); err != nil {
		return fmt.Errorf("publish playback audio: %w", err)
	}
	s.totalSamples += int64(len(samples))
	s.framesWritten++
	if s.progressEvery > 0 && s.framesWritten%int64(s.progressEvery) == 0 {
		s.emit(Event{
			Type:       EventProgress,
			RequestID:  s.req.RequestID,
			PositionMs: s.PositionMs(),
			DurationMs: s.durationMs,
		})
	}
	return nil
}

// PositionMs returns how much audio has been published so far.
func (s *frameSink) PositionMs() int64 {
	return s.totalSamples * 1000 / audio.CanonicalRate
}

// decodeMP3 streams an MP3 through go-mp3 into the sink. go-mp3 always
// yields 16-bit stereo at the source rate.
func decodeMP3(ctx context.Context, r io.Reader, sink *frameSink) error {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return fmt.Errorf("mp3 decode: %w", err)
	}
	srcRate := dec.SampleRate()
	if srcRate <= 0 {
		return errors.New("mp3 decode: invalid sample rate")
	}
	if n := dec.Length(); n > 0 {
		// Length is decoded bytes: 2 channels x 2 bytes per sample.
		sink.durationMs = n * 1000 / int64(srcRate*4)
	}

	var resampler *audio.Resampler
	if srcRate != audio.CanonicalRate {
		resampler = audio.NewResampler(srcRate, audio.CanonicalRate)
	}

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return ErrCancelled
		}
		n, err := dec.Read(buf)
		if n > 0 {
			samples := audio.BytesToInt16(buf[:n])
			samples = audio.DownmixStereo(samples)
			if resampler != nil {
				samples = resampler.Push(samples)
			}
			if len(samples) > 0 {
				if err := sink.Push(samples); err != nil {
					return err
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("mp3 read: %w", err)
		}
	}
}

// decodeWAV parses a RIFF/WAVE stream (16-bit PCM, mono or stereo) and feeds
// the sink progressively.
func decodeWAV(ctx context.Context, r io.Reader, sink *frameSink) error {
	br := bufio.NewReader(r)

	header := make([]byte, 12)
	if _, err := io.ReadFull(br, header); err != nil {
		return fmt.Errorf("wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return errors.New("not a RIFF/WAVE stream")
	}

	var (
		numChannels   uint16
		sampleRate    uint32
		bitsPerSample uint16
		dataBytes     uint32
		haveFmt       bool
	)

	for {
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(br, hdr); err != nil {
			return fmt.Errorf("wav chunk header: %w", err)
		}
		chunkID := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch chunkID {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(br, buf); err != nil {
				return fmt.Errorf("wav fmt chunk: %w", err)
			}
			if size%2 == 1 {
				br.ReadByte()
			}
			if size < 16 {
				return errors.New("wav fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(buf[0:2])
			numChannels = binary.LittleEndian.Uint16(buf[2:4])
			sampleRate = binary.LittleEndian.Uint32(buf[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			if audioFormat != 1 {
				return errors.New("only PCM WAV supported")
			}
			if bitsPerSample != 16 {
				return errors.New("only 16-bit WAV supported")
			}
			if numChannels != 1 && numChannels != 2 {
				return errors.New("only mono/stereo WAV supported")
			}
			haveFmt = true
			continue
		case "data":
			dataBytes = size
		default:
			if _, err := io.CopyN(io.Discard, br, int64(size)); err != nil {
				return fmt.Errorf("wav skip chunk: %w", err)
			}
			if size%2 == 1 {
				br.ReadByte()
			}
			continue
		}
		break
	}
	if !haveFmt {
		return errors.New("wav missing fmt chunk")
	}

	bytesPerSample := int(bitsPerSample/8) * int(numChannels)
	totalSamples := int64(dataBytes) / int64(bytesPerSample)
	sink.durationMs = totalSamples * 1000 / int64(sampleRate)

	var resampler *audio.Resampler
	if int(sampleRate) != audio.CanonicalRate {
		resampler = audio.NewResampler(int(sampleRate), audio.CanonicalRate)
	}

	readLeft := int64(dataBytes)
	buf := make([]byte, 4096-(4096%bytesPerSample))
	for readLeft > 0 {
		if err := ctx.Err(); err != nil {
			return ErrCancelled
		}
		toRead := int64(len(buf))
		if toRead > readLeft {
			toRead = readLeft
		}
		n, err := io.ReadFull(br, buf[:toRead])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("wav read: %w", err)
		}
		if n <= 0 {
			break
		}
		readLeft -= int64(n)

		samples := audio.BytesToInt16(buf[:n])
		if numChannels == 2 {
			samples = audio.DownmixStereo(samples)
		}
		if resampler != nil {
			samples = resampler.Push(samples)
		}
		if len(samples) > 0 {
			if err := sink.Push(samples); err != nil {
				return err
			}
		}
	}
	return nil
}
