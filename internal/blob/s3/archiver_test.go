package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarc/oracled/internal/domain"
)

type fakeWriter struct {
	path        string
	contentType string
	body        []byte
	multipart   bool
	err         error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.path, w.contentType, w.body = path, contentType, body
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.path, w.body, w.multipart = path, body, true
	return nil
}

type fakeRoundStore struct {
	rounds []domain.ConsensusResult
	err    error
	cutoff time.Time
	limit  int
}

func (s *fakeRoundStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.ConsensusResult, error) {
	s.cutoff, s.limit = cutoff, limit
	if s.err != nil {
		return nil, s.err
	}
	return s.rounds, nil
}

func archivedRound(symbol string, computedAt time.Time) domain.ConsensusResult {
	return domain.ConsensusResult{
		Symbol:      symbol,
		RoundID:     "6a0b8f64-aaaa-bbbb-cccc-ddddeeee0001",
		Status:      domain.StatusOk,
		MedianPrice: math.NewInt(8456700000000),
		MedianExpo:  -8,
		Accepted:    []domain.Source{domain.SourcePyth, domain.SourceInternal},
		ComputedAt:  computedAt,
	}
}

func TestArchiveRoundsUploadsJSONL(t *testing.T) {
	cutoff := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	store := &fakeRoundStore{rounds: []domain.ConsensusResult{
		archivedRound("BTC/USD", cutoff.Add(-48*time.Hour)),
		archivedRound("ETH/USD", cutoff.Add(-24*time.Hour)),
	}}
	writer := &fakeWriter{}

	n, err := NewArchiver(writer, store).ArchiveRounds(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, cutoff, store.cutoff)

	assert.Equal(t, "archive/rounds/2026-01.jsonl", writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)
	assert.False(t, writer.multipart)

	// Every line is one self-contained JSON round.
	sc := bufio.NewScanner(bytes.NewReader(writer.body))
	var lines int
	for sc.Scan() {
		var r domain.ConsensusResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		assert.Equal(t, "8456700000000", r.MedianPrice.String())
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestArchiveRoundsLargeBatchUsesMultipart(t *testing.T) {
	cutoff := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	// Pad the rounds so the serialized batch crosses the single-shot
	// threshold.
	pad := strings.Repeat("x", 1<<20)
	store := &fakeRoundStore{}
	for i := 0; i < 10; i++ {
		store.rounds = append(store.rounds, archivedRound(pad, cutoff.Add(-24*time.Hour)))
	}
	writer := &fakeWriter{}

	n, err := NewArchiver(writer, store).ArchiveRounds(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.True(t, writer.multipart)
	assert.Equal(t, "archive/rounds/2026-01.jsonl", writer.path)
}

func TestArchiveRoundsNothingToArchive(t *testing.T) {
	writer := &fakeWriter{}

	n, err := NewArchiver(writer, &fakeRoundStore{}).ArchiveRounds(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.path)
}

func TestArchiveRoundsStoreErrorPropagates(t *testing.T) {
	store := &fakeRoundStore{err: errors.New("pg down")}

	_, err := NewArchiver(&fakeWriter{}, store).ArchiveRounds(context.Background(), time.Now())
	assert.ErrorContains(t, err, "archive rounds query")
}

func TestArchiveRoundsUploadErrorPropagates(t *testing.T) {
	cutoff := time.Now().UTC()
	store := &fakeRoundStore{rounds: []domain.ConsensusResult{archivedRound("BTC/USD", cutoff.Add(-time.Hour))}}
	writer := &fakeWriter{err: errors.New("bucket gone")}

	_, err := NewArchiver(writer, store).ArchiveRounds(context.Background(), cutoff)
	assert.ErrorContains(t, err, "archive rounds upload")
}
