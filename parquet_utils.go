package nsc

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// PaperRow is the parquet layout of an ExamPaper. Nil pointers are stored as
// nulls, so a zero paper number or an empty file stays distinct from absent.
type PaperRow struct {
	Year        int     `parquet:"year,required"`
	Session     string  `parquet:"session,required"`
	Grade       int     `parquet:"grade,required"`
	Subject     string  `parquet:"subject,required"`
	PaperNumber *int    `parquet:"paper_number"`
	Language    string  `parquet:"language,required"`
	PaperType   string  `parquet:"paper_type,required"`
	FileURL     string  `parquet:"file_url,required"`
	FileName    string  `parquet:"file_name,required"`
	FileSize    *int64  `parquet:"file_size"`
	Downloaded  bool    `parquet:"downloaded,required"`
	LocalPath   *string `parquet:"local_path"`
}

func ToRow(p ExamPaper) PaperRow {
	return PaperRow{
		Year:        p.Year,
		Session:     string(p.Session),
		Grade:       p.Grade,
		Subject:     p.Subject,
		PaperNumber: p.PaperNumber,
		Language:    string(p.Language),
		PaperType:   string(p.PaperType),
		FileURL:     p.FileURL,
		FileName:    p.FileName,
		FileSize:    p.FileSize,
		Downloaded:  p.Downloaded,
		LocalPath:   p.LocalPath,
	}
}

// WriteParquet writes papers as a parquet file in index order.
func WriteParquet(path string, papers []ExamPaper) error {
	rows := make([]PaperRow, 0, len(papers))
	for _, p := range papers {
		rows = append(rows, ToRow(p))
	}
	if err := WriteRecords(path, rows); err != nil {
		return fmt.Errorf("failed to write parquet file %s: %w", path, err)
	}
	return nil
}

func WriteRecords[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var zero T
	w := parquet.NewWriter(f, parquet.SchemaOf(&zero), parquet.Compression(&parquet.Snappy))

	for _, rec := range records {
		recCopy := rec // Write takes the address.
		if err := w.Write(&recCopy); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
