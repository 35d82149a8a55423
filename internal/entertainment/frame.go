package entertainment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// marker opens every streaming frame.
var marker = []byte("HueStream")

// ErrBadMarker reports a frame that does not open with the stream marker,
// which means the source lost alignment and the session must stop.
var ErrBadMarker = errors.New("entertainment: frame missing marker")

const (
	v1HeaderLen = 16
	v1RecordLen = 9
	v2HeaderLen = 52
	v2RecordLen = 7

	// ColorspaceRGB carries 16-bit RGB per channel, ColorspaceXY carries
	// 16-bit CIE x, y and brightness.
	ColorspaceRGB = 0
	ColorspaceXY  = 1
)

// Record is one decoded channel update. For v1 frames ID is the light's
// numeric v1 id; for v2 frames it is the channel index. The color is carried
// either as RGB or as xy+bri depending on the frame's colorspace.
type Record struct {
	Type byte
	ID   int

	R, G, B int

	X, Y  float64
	Bri   int
	HasXY bool
}

// Frame is one decoded streaming frame.
type Frame struct {
	APIVersion byte
	Colorspace byte
	Records    []Record
}

// Negotiate determines the stream's fixed frame length by scanning for the
// second frame's marker. The caller must not have consumed any bytes: the
// first read deliberately breaks the first marker so only the second one
// matches. On return the reader is aligned to a frame boundary.
func Negotiate(r io.Reader) (int, error) {
	buf := make([]byte, 1)

	// Skip one byte so the scan cannot match frame one's own marker.
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("entertainment: negotiate: %w", err)
	}

	count := 1
	match := 0
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, fmt.Errorf("entertainment: negotiate: %w", err)
		}
		if buf[0] == marker[match] {
			match++
		} else if buf[0] == marker[0] {
			match = 1
		} else {
			match = 0
		}

		if match == len(marker) {
			// count bytes were consumed up to the end of the second marker:
			// the remainder of frame one plus the 9 marker bytes.
			frameLen := count - 8
			if frameLen < v1HeaderLen {
				return 0, fmt.Errorf("entertainment: negotiated frame length %d too small", frameLen)
			}
			// Discard the rest of frame two to align on frame three.
			if _, err := io.CopyN(io.Discard, r, int64(frameLen-len(marker))); err != nil {
				return 0, fmt.Errorf("entertainment: negotiate: %w", err)
			}
			return frameLen, nil
		}
		count++
	}
}

// Decode parses one raw frame.
func Decode(data []byte) (Frame, error) {
	if len(data) < v1HeaderLen || !bytes.Equal(data[:9], marker) {
		return Frame{}, ErrBadMarker
	}

	f := Frame{
		APIVersion: data[9],
		Colorspace: data[14],
	}

	switch f.APIVersion {
	case 1:
		return decodeV1(f, data)
	case 2:
		return decodeV2(f, data)
	default:
		return Frame{}, fmt.Errorf("entertainment: unsupported api version %d", f.APIVersion)
	}
}

func decodeV1(f Frame, data []byte) (Frame, error) {
	for i := v1HeaderLen; i+v1RecordLen <= len(data); i += v1RecordLen {
		rec := Record{
			Type: data[i],
			ID:   int(data[i+1])<<8 | int(data[i+2]),
		}
		// A zero light id terminates the channel list.
		if rec.Type == 0 && rec.ID == 0 {
			break
		}
		fillColor(&rec, f.Colorspace, data[i+3:i+9])
		f.Records = append(f.Records, rec)
	}
	return f, nil
}

func decodeV2(f Frame, data []byte) (Frame, error) {
	if len(data) < v2HeaderLen {
		return Frame{}, fmt.Errorf("entertainment: v2 frame shorter than header")
	}
	for i := v2HeaderLen; i+v2RecordLen <= len(data); i += v2RecordLen {
		rec := Record{
			ID: int(data[i]),
		}
		fillColor(&rec, f.Colorspace, data[i+1:i+7])
		f.Records = append(f.Records, rec)
	}
	return f, nil
}

// fillColor decodes the three 16-bit color words. RGB keeps the high bytes;
// xy scales to unit coordinates with an 8-bit brightness.
func fillColor(rec *Record, colorspace byte, words []byte) {
	a := int(words[0])<<8 | int(words[1])
	b := int(words[2])<<8 | int(words[3])
	c := int(words[4])<<8 | int(words[5])

	if colorspace == ColorspaceXY {
		rec.X = float64(a) / 65535.0
		rec.Y = float64(b) / 65535.0
		rec.Bri = c / 256
		rec.HasXY = true
		return
	}
	rec.R = a / 256
	rec.G = b / 256
	rec.B = c / 256
}
