package main

import (
	"fmt"
	"os"
	"time"

	"docvault/internal/format"
	"docvault/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeDocumentList(docs []models.Document) error {
	for _, doc := range docs {
		if err := writePlain("%s\n", formatDocumentLine(doc)); err != nil {
			return err
		}
	}
	return nil
}

func formatDocumentLine(doc models.Document) string {
	marker := "●"
	if doc.Deleted {
		marker = "✕"
	}
	return fmt.Sprintf("%s %s [%s] %s %d bytes %s",
		marker, doc.Path, doc.Kind, shortHash(doc.Hash), doc.SizeBytes, formatTime(doc.UpdatedAt))
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
