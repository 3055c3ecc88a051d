package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// SSEEvent is the event name of every snapshot frame.
const SSEEvent = "snapshot"

// JSONFrame encodes v as one JSON document.
func JSONFrame(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("stream: encode json frame: %w", err)
	}
	return b, nil
}

// SSEFrame encodes v as one complete server-sent event:
// "event: snapshot\ndata: <json>\n\n".
func SSEFrame(v any) ([]byte, error) {
	data, err := JSONFrame(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + 32)
	buf.WriteString("event: ")
	buf.WriteString(SSEEvent)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// ProtoFrame encodes v as a binary google.protobuf.Struct carrying the same
// document as JSONFrame.
func ProtoFrame(v any) ([]byte, error) {
	data, err := JSONFrame(v)
	if err != nil {
		return nil, err
	}
	var st structpb.Struct
	if err := protojson.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("stream: convert to struct: %w", err)
	}
	b, err := proto.Marshal(&st)
	if err != nil {
		return nil, fmt.Errorf("stream: encode proto frame: %w", err)
	}
	return b, nil
}
