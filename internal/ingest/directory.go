package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ImportPath uploads one file and, when a processor is configured, processes it.
// A processing failure is reported in the result but does not fail the import.
func (i *Importer) ImportPath(ctx context.Context, t Target, path string) (Result, error) {
	start := time.Now()
	res := Result{SourcePath: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err.Error()
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := i.uploader.Upload(ctx, uploadInput(t, path, data))
	if err != nil {
		res.Err = err.Error()
		i.logger.Error("ingest.upload.error", "path", path, "error", err)
		return res, err
	}
	res.DocumentID = doc.ID
	res.Status = string(doc.Status)

	if i.processor != nil {
		processed, err := i.processor.Process(ctx, doc.ID)
		if err != nil {
			res.Err = err.Error()
			i.logger.Warn("ingest.process.error", "path", path, "document_id", doc.ID, "error", err)
		}
		if processed != nil {
			res.Status = string(processed.Status)
		}
	}
	i.logger.Info("ingest.file.ok",
		"path", path,
		"document_id", doc.ID,
		"status", res.Status,
		"elapsed_ms", elapsed(start),
	)
	return res, nil
}

// ImportDirectory walks root and imports every matching file. Walk and per-file errors
// are collected in the results; only a missing root or a cancelled context fails the call.
func (i *Importer) ImportDirectory(ctx context.Context, t Target, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	if _, err := os.Stat(root); err != nil {
		return nil, DirStats{}, err
	}
	start := time.Now()
	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !i.Allowed(path) {
			return nil
		}
		stats.Matched++

		res, err := i.ImportPath(ctx, t, path)
		results = append(results, res)
		if err != nil {
			stats.Failed++
			return nil
		}
		stats.Succeeded++
		return nil
	})

	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"elapsed_ms", elapsed(start),
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
