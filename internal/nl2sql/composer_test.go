package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var albumCount = &database.Result{Columns: []string{"COUNT(*)"}, Rows: [][]any{{int64(34)}}}

// streamer emits its answer in fixed chunks.
type streamer struct {
	scripted
	chunks []string
}

func (s *streamer) Stream(_ context.Context, prompt string, onChunk func(string) error) error {
	s.prompts = append(s.prompts, prompt)
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func TestCompose(t *testing.T) {
	gen := &scripted{outputs: []string{"Response: There are 34 albums in the database.\n"}}

	answer, err := NewComposer(gen).Compose(context.Background(), testSchema,
		"How many albums are in the database?", "SELECT COUNT(*) FROM album;", albumCount)
	require.NoError(t, err)

	assert.Equal(t, "There are 34 albums in the database.", answer)
	require.Len(t, gen.prompts, 1)
	assert.True(t, strings.HasSuffix(gen.prompts[0],
		"SQL query: SELECT COUNT(*) FROM album;\nResult: [(34,)]\nResponse:"))
}

func TestCompose_Failures(t *testing.T) {
	t.Run("generator error", func(t *testing.T) {
		gen := &scripted{err: errors.New("model not found")}

		_, err := NewComposer(gen).Compose(context.Background(), testSchema, "q", "SELECT 1", albumCount)
		require.Error(t, err)
		assert.True(t, errs.IsCompositionFailed(err))
		assert.Equal(t, "model not found", errs.Reason(err))
	})

	t.Run("empty answer", func(t *testing.T) {
		gen := &scripted{outputs: []string{"  Response:  "}}

		_, err := NewComposer(gen).Compose(context.Background(), testSchema, "q", "SELECT 1", albumCount)
		require.Error(t, err)
		assert.True(t, errs.IsCompositionFailed(err))
	})

	t.Run("no result", func(t *testing.T) {
		gen := &scripted{outputs: []string{"x"}}

		_, err := NewComposer(gen).Compose(context.Background(), testSchema, "q", "SELECT 1", nil)
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
		assert.Empty(t, gen.prompts)
	})
}

func TestComposeStream(t *testing.T) {
	t.Run("streaming generator", func(t *testing.T) {
		gen := &streamer{chunks: []string{"There are ", "34 albums", "."}}
		var got []string

		answer, err := NewComposer(gen).ComposeStream(context.Background(), testSchema, "q", "SELECT 1", albumCount,
			func(c string) error {
				got = append(got, c)
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, "There are 34 albums.", answer)
		assert.Equal(t, []string{"There are ", "34 albums", "."}, got)
		assert.Len(t, gen.prompts, 1)
	})

	t.Run("plain generator", func(t *testing.T) {
		gen := &scripted{outputs: []string{"Response: There are 34 albums."}}
		var got []string

		answer, err := NewComposer(gen).ComposeStream(context.Background(), testSchema, "q", "SELECT 1", albumCount,
			func(c string) error {
				got = append(got, c)
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, "There are 34 albums.", answer)
		assert.Equal(t, []string{"There are 34 albums."}, got)
	})

	t.Run("callback error", func(t *testing.T) {
		gen := &streamer{chunks: []string{"a", "b"}}

		_, err := NewComposer(gen).ComposeStream(context.Background(), testSchema, "q", "SELECT 1", albumCount,
			func(string) error { return errors.New("client went away") })
		require.Error(t, err)
		assert.True(t, errs.IsCompositionFailed(err))
	})
}
