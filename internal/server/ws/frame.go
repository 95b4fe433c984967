package ws

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type format int

const (
	formatJSON format = iota
	// formatProto frames are a google.protobuf.Struct with the same shape
	// as the JSON frame.
	formatProto
)

func parseFormat(s string) format {
	if s == "proto" {
		return formatProto
	}
	return formatJSON
}

// encodedFrame is one {"channel", "payload"} message rendered once for each
// wire format, so the fan-out never re-encodes per client.
type encodedFrame struct {
	channel string
	json    []byte
	proto   []byte
}

func (f encodedFrame) bytes(fm format) []byte {
	if fm == formatProto {
		return f.proto
	}
	return f.json
}

func encodeFrame(channel string, payload any) (encodedFrame, error) {
	raw, err := json.Marshal(struct {
		Channel string `json:"channel"`
		Payload any    `json:"payload"`
	}{channel, payload})
	if err != nil {
		return encodedFrame{}, fmt.Errorf("ws: encode %s: %w", channel, err)
	}

	// structpb accepts only JSON-native values, so decode the JSON form.
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return encodedFrame{}, fmt.Errorf("ws: encode %s: %w", channel, err)
	}
	st, err := structpb.NewStruct(generic)
	if err != nil {
		return encodedFrame{}, fmt.Errorf("ws: encode %s: %w", channel, err)
	}
	bin, err := proto.Marshal(st)
	if err != nil {
		return encodedFrame{}, fmt.Errorf("ws: encode %s: %w", channel, err)
	}
	return encodedFrame{channel: channel, json: raw, proto: bin}, nil
}
