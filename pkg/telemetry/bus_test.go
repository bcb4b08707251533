package telemetry

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCBORRoundTrip(t *testing.T) {
	in := record{Interface: "UART", FrameID: 0x42, Type: 0x10, Value: []byte{1, 2, 3}}

	encoded, err := cbor.Marshal(in)
	require.NoError(t, err)

	var out record
	require.NoError(t, cbor.Unmarshal(encoded, &out))

	assert.Equal(t, in, out)
}

func TestRejectedRecordCBORRoundTrip(t *testing.T) {
	in := rejectedRecord{Interface: "UART", FrameID: 0x42, Type: 0x50, Value: []byte{9}, Reason: "dispatch: no handler registered"}

	encoded, err := cbor.Marshal(in)
	require.NoError(t, err)

	var out rejectedRecord
	require.NoError(t, cbor.Unmarshal(encoded, &out))

	assert.Equal(t, in, out)
}

func TestAckNackCBORRoundTrip(t *testing.T) {
	in := ackNack{Interface: "USB", OriginalFrameID: 0x77}

	encoded, err := cbor.Marshal(in)
	require.NoError(t, err)

	var out ackNack
	require.NoError(t, cbor.Unmarshal(encoded, &out))

	assert.Equal(t, in, out)
}
