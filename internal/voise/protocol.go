package voise

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Result codes sent by the Voise server.
const (
	CodeOK       = 200
	CodeAccepted = 201
)

const (
	serviceName      = "voise.v1.Voise"
	methodRecognize  = "/" + serviceName + "/StreamingRecognize"
	methodSynthesize = "/" + serviceName + "/Synthesize"
)

// Message fields. Every message is a google.protobuf.Struct.
const (
	fieldType          = "type"
	fieldAudio         = "audio"
	fieldEncoding      = "encoding"
	fieldSampleRate    = "sample_rate"
	fieldLang          = "lang"
	fieldModelName     = "model_name"
	fieldASREngine     = "asr_engine"
	fieldText          = "text"
	fieldResultCode    = "result_code"
	fieldResultMessage = "result_message"
	fieldUtterance     = "utterance"
	fieldIntent        = "intent"
	fieldConfidence    = "confidence"
	fieldProbability   = "probability"

	typeStart = "start"
	typeAudio = "audio"
)

// Server is the server side of the Voise streaming API.
type Server interface {
	// StreamingRecognize receives a start message followed by audio
	// messages and answers with an ack and, after the client half-closes,
	// the final result.
	StreamingRecognize(stream grpc.ServerStream) error
	// Synthesize answers a synthesis request with an ack followed by
	// audio chunks.
	Synthesize(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes the Voise service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamingRecognize",
			Handler:       recognizeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "Synthesize",
			Handler:       synthesizeHandler,
			ServerStreams: true,
		},
	},
}

// RegisterServer registers srv with s.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func recognizeHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(Server).StreamingRecognize(stream)
}

func synthesizeHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(Server).Synthesize(req, stream)
}

func newMessage(fields map[string]interface{}) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return msg, nil
}

func audioMessage(data []byte) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType:  structpb.NewStringValue(typeAudio),
		fieldAudio: structpb.NewStringValue(base64.StdEncoding.EncodeToString(data)),
	}}
}

// ResultMessage builds a server reply carrying a result code.
func ResultMessage(code int, message string, fields map[string]interface{}) (*structpb.Struct, error) {
	all := map[string]interface{}{
		fieldResultCode:    code,
		fieldResultMessage: message,
	}
	for k, v := range fields {
		all[k] = v
	}
	return newMessage(all)
}

// AudioMessage builds an audio chunk message.
func AudioMessage(data []byte) *structpb.Struct {
	return audioMessage(data)
}

// DecodeAudio returns the audio carried by msg, if any.
func DecodeAudio(msg *structpb.Struct) ([]byte, bool, error) {
	v, ok := msg.GetFields()[fieldAudio]
	if !ok {
		return nil, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(v.GetStringValue())
	if err != nil {
		return nil, true, fmt.Errorf("decode audio: %w", err)
	}
	return data, true, nil
}

func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

func numberField(msg *structpb.Struct, name string) float64 {
	return msg.GetFields()[name].GetNumberValue()
}

func resultCode(msg *structpb.Struct) (int, bool) {
	v, ok := msg.GetFields()[fieldResultCode]
	if !ok {
		return 0, false
	}
	return int(v.GetNumberValue()), true
}
