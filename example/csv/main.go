package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/carlohamalainen/nsc-exam-papers-go"
)

func optional[T any](p *T) string {
	if p == nil {
		return ""
	}
	return fmt.Sprint(*p)
}

func main() {
	indexPath := "sa_exam_papers/" + nsc.IndexFileName
	if len(os.Args) > 1 {
		indexPath = os.Args[1]
	}

	papers, err := nsc.ReadIndex(indexPath)
	if err != nil {
		panic(err)
	}

	header := []string{"Year", "Session", "Grade", "Subject", "Paper_Number", "Language", "Paper_Type", "File_Name", "File_Size", "Downloaded", "File_URL"}

	rows := [][]string{}
	rows = append(rows, header)

	for _, p := range papers {
		row := []string{}

		row = append(row, strconv.Itoa(p.Year))
		row = append(row, string(p.Session))
		row = append(row, strconv.Itoa(p.Grade))
		row = append(row, p.Subject)
		row = append(row, optional(p.PaperNumber))
		row = append(row, string(p.Language))
		row = append(row, string(p.PaperType))
		row = append(row, p.FileName)
		row = append(row, optional(p.FileSize))
		row = append(row, strconv.FormatBool(p.Downloaded))
		row = append(row, p.FileURL)

		rows = append(rows, row)
	}

	writer := csv.NewWriter(os.Stdout)

	err = writer.WriteAll(rows)
	if err != nil {
		panic(err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		panic(err)
	}
}
