package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"docvault/internal/models"
)

const manifestVersion = 1

// manifest is the YAML record list read by refs rebuild and written by
// refs export.
type manifest struct {
	Version    int              `yaml:"version"`
	ExportedAt time.Time        `yaml:"exported_at,omitempty"`
	Documents  []manifestRecord `yaml:"documents"`
}

type manifestRecord struct {
	Path      string `yaml:"path"`
	Hash      string `yaml:"hash"`
	Kind      string `yaml:"kind"`
	SizeBytes int64  `yaml:"size_bytes,omitempty"`
	Deleted   bool   `yaml:"deleted,omitempty"`
}

func loadManifest(path string) ([]models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeManifest(f)
}

func decodeManifest(r io.Reader) ([]models.Document, error) {
	var m manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != 0 && m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}

	docs := make([]models.Document, 0, len(m.Documents))
	seen := make(map[string]struct{}, len(m.Documents))
	for i, rec := range m.Documents {
		p, err := models.CleanPath(rec.Path)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("record %d: duplicate path %s", i, p)
		}
		seen[p] = struct{}{}
		docs = append(docs, models.Document{
			Path:      p,
			Hash:      rec.Hash,
			Kind:      rec.Kind,
			SizeBytes: rec.SizeBytes,
			Deleted:   rec.Deleted,
		})
	}
	return docs, nil
}

func encodeManifest(w io.Writer, docs []models.Document, now time.Time) error {
	m := manifest{Version: manifestVersion, ExportedAt: now.UTC(), Documents: make([]manifestRecord, 0, len(docs))}
	for _, doc := range docs {
		m.Documents = append(m.Documents, manifestRecord{
			Path:      doc.Path,
			Hash:      doc.Hash,
			Kind:      doc.Kind,
			SizeBytes: doc.SizeBytes,
			Deleted:   doc.Deleted,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}
