package engine

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// FrameKind identifies a protocol message.
type FrameKind uint8

const (
	// FrameRevs carries a batch of document revisions.
	FrameRevs FrameKind = iota + 1
	// FrameAck acknowledges a FrameRevs and reports how many were applied.
	FrameAck
	// FrameSubscribe asks the peer for its changes after a sequence.
	FrameSubscribe
	// FrameError reports a failure to the peer; the session ends after it.
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameRevs:
		return "revs"
	case FrameAck:
		return "ack"
	case FrameSubscribe:
		return "subscribe"
	case FrameError:
		return "error"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

// Frame is one protocol message. Integer keys keep frames compact on the
// wire.
type Frame struct {
	Kind FrameKind `cbor:"1,keyasint"`

	// Number is the sender's frame number (see Clock).
	Number int64 `cbor:"2,keyasint"`

	// ReplyTo is the Number of the request this frame answers.
	ReplyTo int64 `cbor:"3,keyasint,omitempty"`

	// Since and Limit are set on FrameSubscribe.
	Since int64 `cbor:"4,keyasint,omitempty"`
	Limit int   `cbor:"5,keyasint,omitempty"`

	// Last is the highest sender-local sequence covered by a FrameRevs. The
	// receiver stores it as its checkpoint.
	Last int64 `cbor:"6,keyasint,omitempty"`

	Revs []Revision `cbor:"7,keyasint,omitempty"`

	// Applied is set on FrameAck.
	Applied int `cbor:"8,keyasint,omitempty"`

	Error *WireError `cbor:"9,keyasint,omitempty"`
}

// Revision is a document as carried in a FrameRevs.
type Revision struct {
	ID      string `cbor:"1,keyasint"`
	Body    []byte `cbor:"2,keyasint,omitempty"`
	Deleted bool   `cbor:"3,keyasint,omitempty"`
	Seq     int64  `cbor:"4,keyasint"`
}

// WireError is an error reported by the peer.
type WireError struct {
	Domain  int    `cbor:"1,keyasint"`
	Code    int    `cbor:"2,keyasint"`
	Message string `cbor:"3,keyasint,omitempty"`
}

// Frame encoding prefix bytes.
const (
	encodingPlain byte = 0
	encodingZstd  byte = 1
)

// DefaultCompressionThreshold is the encoded size above which frames are
// zstd-compressed.
const DefaultCompressionThreshold = 1024

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// zstd.Encoder and zstd.Decoder are safe for concurrent EncodeAll and
	// DecodeAll.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("engine: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("engine: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("engine: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("engine: zstd decoder initialization failed: " + err.Error())
	}
}

// EncodeFrame serializes f. Frames larger than threshold bytes are
// compressed when that makes them smaller; a negative threshold disables
// compression.
func EncodeFrame(f Frame, threshold int) ([]byte, error) {
	body, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Kind, err)
	}
	if threshold >= 0 && len(body) > threshold {
		compressed := zstdEncoder.EncodeAll(body, []byte{encodingZstd})
		if len(compressed) < len(body)+1 {
			return compressed, nil
		}
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, encodingPlain)
	return append(out, body...), nil
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, NewMalformedFrameError(errors.New("empty frame"))
	}
	body := data[1:]
	switch data[0] {
	case encodingPlain:
	case encodingZstd:
		var err error
		body, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return Frame{}, NewMalformedFrameError(fmt.Errorf("zstd: %w", err))
		}
	default:
		return Frame{}, NewMalformedFrameError(fmt.Errorf("unknown encoding %d", data[0]))
	}

	var f Frame
	if err := decMode.Unmarshal(body, &f); err != nil {
		return Frame{}, NewMalformedFrameError(err)
	}
	if f.Kind < FrameRevs || f.Kind > FrameError {
		return Frame{}, NewMalformedFrameError(fmt.Errorf("unknown frame kind %d", f.Kind))
	}
	return f, nil
}
