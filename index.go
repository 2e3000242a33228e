package nsc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IndexFileName is the name of the JSON index written into the output root.
const IndexFileName = "exam_papers_index.json"

// WriteIndex writes every paper, downloaded or not, as an indented JSON array
// to root/exam_papers_index.json and returns the path written.
func WriteIndex(root string, papers []ExamPaper) (string, error) {
	if papers == nil {
		papers = []ExamPaper{}
	}

	data, err := json.MarshalIndent(papers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode index: %w", err)
	}

	indexPath := filepath.Join(root, IndexFileName)
	if err := os.WriteFile(indexPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write index %s: %w", indexPath, err)
	}

	return indexPath, nil
}

func ReadIndex(path string) ([]ExamPaper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var papers []ExamPaper
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", path, err)
	}

	return papers, nil
}
