package storage

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

func encode(key string, v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return b, nil
}

func decode(key string, b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}
