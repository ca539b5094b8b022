package iceberg

import (
	"encoding/json"
	"fmt"
)

// ManifestCodec is the encode/decode pair over structured manifest
// records. The binary columnar encoding lives behind this boundary;
// callers with an Avro encoder plug it in here.
type ManifestCodec interface {
	// Extension names the file suffix for artifacts this codec produces.
	Extension() string

	EncodeManifest(entries []ManifestEntry) ([]byte, error)
	DecodeManifest(data []byte) ([]ManifestEntry, error)

	EncodeManifestList(manifests []ManifestFile) ([]byte, error)
	DecodeManifestList(data []byte) ([]ManifestFile, error)
}

// JSONCodec persists manifests and manifest lists as JSON documents.
type JSONCodec struct{}

func (JSONCodec) Extension() string { return "json" }

func (JSONCodec) EncodeManifest(entries []ManifestEntry) ([]byte, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

func (JSONCodec) DecodeManifest(data []byte) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return entries, nil
}

func (JSONCodec) EncodeManifestList(manifests []ManifestFile) ([]byte, error) {
	data, err := json.Marshal(manifests)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest list: %w", err)
	}
	return data, nil
}

func (JSONCodec) DecodeManifestList(data []byte) ([]ManifestFile, error) {
	var manifests []ManifestFile
	if err := json.Unmarshal(data, &manifests); err != nil {
		return nil, fmt.Errorf("decoding manifest list: %w", err)
	}
	return manifests, nil
}
