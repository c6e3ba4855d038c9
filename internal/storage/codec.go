package storage

import (
	"bytes"
	"io"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

func encodeRow(columns []string, row value.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := value.WriteRow(&buf, columns, row); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue(blob []byte) (value.Value, error) {
	return value.ReadValue(bytes.NewReader(blob))
}

func bytesReader(blob []byte) io.Reader {
	return bytes.NewReader(blob)
}
