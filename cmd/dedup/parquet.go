// parquet.go -- stream (id, text) records out of a parquet file

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	dedup "github.com/wheynelau/go-textdedup"
)

// parquetSource reads the text and id columns of a parquet file in
// chunks and yields documents in row order. When the id column name is
// empty the row number becomes the document id.
type parquetSource struct {
	fr source.ParquetFile
	pr *reader.ParquetReader

	textIdx int64
	idIdx   int64 // -1 when ids are row numbers

	total int64 // rows in the file
	off   int64 // rows consumed from the reader
	chunk int64 // rows per column read

	docs []dedup.Document
	pos  int
	row  uint64
}

// newParquetSource opens path and locates the configured columns. A
// chunk of 0 reads the whole file in one pass.
func newParquetSource(path, textCol, idCol string, chunk int) (*parquetSource, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}

	pr, err := reader.NewParquetColumnReader(fr, 4)
	if err != nil {
		fr.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s := &parquetSource{
		fr:    fr,
		pr:    pr,
		total: pr.GetNumRows(),
		chunk: int64(chunk),
	}
	if s.chunk <= 0 {
		s.chunk = s.total
	}

	s.textIdx, err = s.columnIndex(textCol)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.idIdx = -1
	if idCol != "" {
		s.idIdx, err = s.columnIndex(idCol)
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// columnIndex finds the leaf column whose name matches, ignoring the
// case changes parquet-go applies to external names.
func (s *parquetSource) columnIndex(name string) (int64, error) {
	for i, path := range s.pr.SchemaHandler.ValueColumns {
		parts := strings.Split(path, common.PAR_GO_PATH_DELIMITER)
		if len(parts) > 1 && strings.EqualFold(parts[len(parts)-1], name) {
			return int64(i), nil
		}
	}
	return 0, fmt.Errorf("%w: column %q not in parquet schema", dedup.ErrInput, name)
}

func (s *parquetSource) Next() (dedup.Document, error) {
	if s.pos >= len(s.docs) {
		if err := s.fill(); err != nil {
			return dedup.Document{}, err
		}
		if len(s.docs) == 0 {
			return dedup.Document{}, io.EOF
		}
	}

	d := s.docs[s.pos]
	s.pos++
	return d, nil
}

// fill reads the next chunk of both columns.
func (s *parquetSource) fill() error {
	s.docs = s.docs[:0]
	s.pos = 0

	n := s.total - s.off
	if n <= 0 {
		return nil
	}
	if n > s.chunk {
		n = s.chunk
	}

	texts, _, _, err := s.pr.ReadColumnByIndex(s.textIdx, n)
	if err != nil {
		return fmt.Errorf("%w: reading text column: %v", dedup.ErrInput, err)
	}

	var ids []interface{}
	if s.idIdx >= 0 {
		ids, _, _, err = s.pr.ReadColumnByIndex(s.idIdx, n)
		if err != nil {
			return fmt.Errorf("%w: reading id column: %v", dedup.ErrInput, err)
		}
		if len(ids) != len(texts) {
			return fmt.Errorf("%w: id column has %d values, text column %d",
				dedup.ErrInput, len(ids), len(texts))
		}
	}

	for i := range texts {
		text, err := asText(texts[i])
		if err != nil {
			return fmt.Errorf("%w: row %d: %v", dedup.ErrInput, s.off+int64(i), err)
		}

		id := s.row
		if ids != nil {
			id, err = asID(ids[i])
			if err != nil {
				return fmt.Errorf("%w: row %d: %v", dedup.ErrInput, s.off+int64(i), err)
			}
		}
		s.row++

		s.docs = append(s.docs, dedup.Document{ID: id, Text: text})
	}

	s.off += int64(len(texts))
	return nil
}

func asText(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("text value has type %T", v)
	}
}

func asID(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case int64:
		if t < 0 {
			return 0, fmt.Errorf("negative id %d", t)
		}
		return uint64(t), nil
	case int32:
		if t < 0 {
			return 0, fmt.Errorf("negative id %d", t)
		}
		return uint64(t), nil
	case string:
		return strconv.ParseUint(t, 10, 64)
	default:
		return 0, fmt.Errorf("id value has type %T", v)
	}
}

func (s *parquetSource) Close() {
	s.pr.ReadStop()
	s.fr.Close()
}
