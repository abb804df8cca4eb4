package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantarc/oracled/internal/domain"
)

// RoundArchiveStore provides the one read the archiver needs from the
// history store. The Postgres HistoryStore satisfies it implicitly.
type RoundArchiveStore interface {
	// ListBefore returns rounds computed strictly before the cutoff,
	// oldest first, capped at limit.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ConsensusResult, error)
}

// ArchiveImpl implements domain.Archiver by querying the history store
// for old rounds, serializing them to JSONL, and uploading the result
// to S3.
//
// Deletion of the archived rounds from the primary store is intentionally
// NOT performed here -- the history table is append-only and any pruning
// is a separate, explicit operation executed after the archive has been
// verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	rounds RoundArchiveStore
}

// archiveBatchLimit bounds one archive run so a very old backlog is
// drained over multiple cron triggers instead of one giant upload.
const archiveBatchLimit = 500_000

// multipartThreshold is the serialized batch size above which the
// upload switches from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// multipartPartSize is the part size for multipart archive uploads.
const multipartPartSize int64 = 8 * 1024 * 1024

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, rounds RoundArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		rounds: rounds,
	}
}

// ArchiveRounds queries all rounds before the cutoff, serializes them
// to JSONL, and uploads the file to S3 at archive/rounds/YYYY-MM.jsonl.
// It returns the count of archived rounds.
func (a *ArchiveImpl) ArchiveRounds(ctx context.Context, before time.Time) (int64, error) {
	rounds, err := a.rounds.ListBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rounds)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds marshal: %w", err)
	}

	path := archivePath("rounds", before)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds upload: %w", err)
	}

	return int64(len(rounds)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/rounds/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
