package api

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/llamafarm/pkg/apperr"
)

// Dataset is a named source-path registration a project's CLI/UI
// created via `datasets create`; it is not part of the immutable
// manifest (spec.md §3 "Project Manifest ... datasets" only names
// source references declared at authoring time) but a small, mutable
// extension this API server needs to track uploads and the database an
// ingested source feeds.
type Dataset struct {
	Name         string `json:"name"`
	SourcePath   string `json:"source_path"`
	DatabaseName string `json:"database_name"`
}

// datasetRegistry persists the set of known datasets to a single JSON
// file via the same write-temp-then-rename discipline as resultstore
// and vectorstore, keyed by name.
type datasetRegistry struct {
	path string

	mu   sync.RWMutex
	data map[string]Dataset
}

func openDatasetRegistry(path string) (*datasetRegistry, error) {
	r := &datasetRegistry{path: path, data: make(map[string]Dataset)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, apperr.TransportError("reading dataset registry", err)
	}
	var list []Dataset
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, apperr.TransportError("parsing dataset registry", err)
	}
	for _, d := range list {
		r.data[d.Name] = d
	}
	return r, nil
}

func (r *datasetRegistry) persist() error {
	list := make([]Dataset, 0, len(r.data))
	for _, d := range r.data {
		list = append(list, d)
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return apperr.TransportError("encoding dataset registry", err)
	}
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".tmp-datasets-*")
	if err != nil {
		return apperr.TransportError("creating temp dataset registry file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.TransportError("writing dataset registry", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.TransportError("closing temp dataset registry file", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return apperr.TransportError("renaming dataset registry into place", err)
	}
	return nil
}

func (r *datasetRegistry) create(d Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[d.Name]; exists {
		return apperr.ErrAlreadyExists
	}
	r.data[d.Name] = d
	return r.persist()
}

func (r *datasetRegistry) get(name string) (Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.data[name]
	return d, ok
}

func (r *datasetRegistry) list() []Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Dataset, 0, len(r.data))
	for _, d := range r.data {
		out = append(out, d)
	}
	return out
}

func (r *datasetRegistry) delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[name]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.data, name)
	return r.persist()
}
