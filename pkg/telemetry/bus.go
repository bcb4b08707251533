// Package telemetry publishes decoded TLV records and ACK/NACK traffic to
// Redis Pub/Sub, adapted from the teacher's pkg/redis.Client. It is
// purely an observer of pkg/dispatch: nothing here can influence the
// ACK/NACK decision (SPEC_FULL.md §4.10).
package telemetry

import (
	"context"
	"fmt"
	"log"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/uf4over/tvlcom/pkg/frame"
	"github.com/uf4over/tvlcom/pkg/tlv"
)

// record is the CBOR wire shape published for every decoded non-ACK/NACK
// TLV record, mirroring the teacher's map-of-uint16 CBOR messages for its
// nRF52 link but keyed on the fields this domain actually has.
type record struct {
	Interface string `cbor:"iface"`
	FrameID   byte   `cbor:"frame_id"`
	Type      byte   `cbor:"type"`
	Value     []byte `cbor:"value"`
}

// rejectedRecord is the CBOR wire shape published when a record could not
// be dispatched, carrying the dispatch.ErrNoHandler/ErrHandlerRejected
// reason as a string.
type rejectedRecord struct {
	Interface string `cbor:"iface"`
	FrameID   byte   `cbor:"frame_id"`
	Type      byte   `cbor:"type"`
	Value     []byte `cbor:"value"`
	Reason    string `cbor:"reason"`
}

// ackNack is the CBOR wire shape published for ACK/NACK notifications.
type ackNack struct {
	Interface       string `cbor:"iface"`
	OriginalFrameID byte   `cbor:"original_frame_id"`
}

// Bus publishes telemetry to Redis. It satisfies dispatch.Observer.
type Bus struct {
	client *redis.Client
	ctx    context.Context

	recordsChannel  string
	rejectedChannel string
	ackChannel      string
	nackChannel     string
}

// Channel names, matching the teacher's convention of one channel per
// topic rather than one channel per field.
const (
	DefaultRecordsChannel  = "tvlcom:records"
	DefaultRejectedChannel = "tvlcom:rejected"
	DefaultAckChannel      = "tvlcom:ack"
	DefaultNackChannel     = "tvlcom:nack"
)

// New connects to the Redis instance at addr (teacher's pkg/redis.New
// shape: address, password, db) and returns a Bus publishing to the
// default channel names.
func New(addr, password string, db int) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %w", err)
	}

	return &Bus{
		client:          client,
		ctx:             ctx,
		recordsChannel:  DefaultRecordsChannel,
		rejectedChannel: DefaultRejectedChannel,
		ackChannel:      DefaultAckChannel,
		nackChannel:     DefaultNackChannel,
	}, nil
}

// Close closes the underlying Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// OnRecord publishes a decoded non-ACK/NACK record. Failures are logged,
// not returned: telemetry is best-effort and must never affect dispatch.
func (b *Bus) OnRecord(iface frame.Interface, frameID byte, r tlv.Record) {
	payload, err := cbor.Marshal(record{
		Interface: iface.String(),
		FrameID:   frameID,
		Type:      r.Type,
		Value:     append([]byte(nil), r.Value()...),
	})
	if err != nil {
		log.Printf("telemetry: marshal record: %v", err)
		return
	}

	if err := b.client.Publish(b.ctx, b.recordsChannel, payload).Err(); err != nil {
		log.Printf("telemetry: publish record: %v", err)
	}
}

// OnReject publishes a record that dispatch could not deliver, carrying
// err's message (typically dispatch.ErrNoHandler or
// dispatch.ErrHandlerRejected) as the reason.
func (b *Bus) OnReject(iface frame.Interface, frameID byte, r tlv.Record, err error) {
	payload, marshalErr := cbor.Marshal(rejectedRecord{
		Interface: iface.String(),
		FrameID:   frameID,
		Type:      r.Type,
		Value:     append([]byte(nil), r.Value()...),
		Reason:    err.Error(),
	})
	if marshalErr != nil {
		log.Printf("telemetry: marshal rejected record: %v", marshalErr)
		return
	}

	if err := b.client.Publish(b.ctx, b.rejectedChannel, payload).Err(); err != nil {
		log.Printf("telemetry: publish rejected record: %v", err)
	}
}

// OnAck publishes an ACK notification.
func (b *Bus) OnAck(iface frame.Interface, originalFrameID byte) {
	b.publishAckNack(b.ackChannel, iface, originalFrameID)
}

// OnNack publishes a NACK notification.
func (b *Bus) OnNack(iface frame.Interface, originalFrameID byte) {
	b.publishAckNack(b.nackChannel, iface, originalFrameID)
}

func (b *Bus) publishAckNack(channel string, iface frame.Interface, originalFrameID byte) {
	payload, err := cbor.Marshal(ackNack{
		Interface:       iface.String(),
		OriginalFrameID: originalFrameID,
	})
	if err != nil {
		log.Printf("telemetry: marshal ack/nack: %v", err)
		return
	}

	if err := b.client.Publish(b.ctx, channel, payload).Err(); err != nil {
		log.Printf("telemetry: publish ack/nack: %v", err)
	}
}
