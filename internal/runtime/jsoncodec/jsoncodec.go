package jsoncodec

import (
	"github.com/bytedance/sonic"
)

var (
	defaultConfig = sonic.ConfigStd
	// numberConfig keeps JSON numbers as json.Number so large epoch
	// timestamps survive a decode/encode round trip unchanged.
	numberConfig = sonic.Config{
		UseNumber:        true,
		EscapeHTML:       true,
		CompactMarshaler: true,
		CopyString:       true,
		ValidateString:   true,
	}.Froze()
)

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalString(v any) (string, error) {
	return numberConfig.MarshalToString(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// UnmarshalValue decodes an arbitrary document, keeping numbers as json.Number.
func UnmarshalValue(data []byte) (any, error) {
	var v any
	if err := numberConfig.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
