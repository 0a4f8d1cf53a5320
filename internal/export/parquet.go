package export

import (
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type CloseFunc func() error

// NewLocalParquetWriter opens a typed parquet writer on a local file. The file is
// left in place by the close function.
func NewLocalParquetWriter[T any](path string, parallel int64, compression string) (*writer.ParquetWriter, CloseFunc, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, nil, err
	}

	pw, err := writer.NewParquetWriter(fw, new(T), parallel)
	if err != nil {
		_ = fw.Close()
		return nil, nil, err
	}
	pw.CompressionType = codec(compression)

	closeFn := func() error {
		if err := pw.WriteStop(); err != nil {
			_ = fw.Close()
			return err
		}
		return fw.Close()
	}
	return pw, closeFn, nil
}

func codec(name string) parquet.CompressionCodec {
	switch name {
	case "ZSTD":
		return parquet.CompressionCodec_ZSTD
	case "GZIP":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_SNAPPY
	}
}
