package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{CorrelationID: "abc-123", MessageType: "TpProcessRequest", Content: []byte("payload")}
	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)
	require.Equal(t, f, decoded)
}

func TestFrameRoundTripEmptyContent(t *testing.T) {
	f := Frame{CorrelationID: "x", MessageType: "PingRequest"}
	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)
	require.Equal(t, f.CorrelationID, decoded.CorrelationID)
	require.Equal(t, f.MessageType, decoded.MessageType)
	require.Empty(t, decoded.Content)
}

func TestDecodeFrameRejectsTruncated(t *testing.T) {
	_, err := DecodeFrame([]byte{0xff})
	require.Error(t, err)
}
