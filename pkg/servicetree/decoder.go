package servicetree

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Decoder 把持久化的 payload 还原成具体类型
type Decoder func(raw json.RawMessage) (Payload, error)

var decoders = map[Tag]Decoder{}

// RegisterDecoder 注册标签对应的解码器
func RegisterDecoder(tag Tag, decoder Decoder) {
	key := Tag(strings.ToLower(string(tag)))
	if key == "" || decoder == nil {
		return
	}
	decoders[key] = decoder
}

func lookupDecoder(tag Tag) (Decoder, bool) {
	d, ok := decoders[Tag(strings.ToLower(string(tag)))]
	return d, ok
}

// JSONDecoder 以严格 JSON 解码 payload 的通用解码器
func JSONDecoder[T Payload]() Decoder {
	return func(raw json.RawMessage) (Payload, error) {
		var p T
		if len(raw) == 0 || string(raw) == "null" {
			return p, nil
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func init() {
	RegisterDecoder(TagLocalService, JSONDecoder[LocalService]())
	RegisterDecoder(TagLocalProject, JSONDecoder[LocalProject]())
	RegisterDecoder(TagAzureService, JSONDecoder[AzureService]())
	RegisterDecoder(TagAzureProject, JSONDecoder[AzureProject]())
}
