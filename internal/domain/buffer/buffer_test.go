package buffer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/storage"
)

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingKV) Put(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

func TestParsePane(t *testing.T) {
	tests := []struct {
		in      string
		want    buffer.Pane
		wantErr bool
	}{
		{"html", buffer.PaneHTML, false},
		{"CSS", buffer.PaneCSS, false},
		{" js ", buffer.PaneJS, false},
		{"python", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := buffer.ParsePane(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, buffer.ErrUnknownPane)
				assert.Contains(t, err.Error(), "[html css js]")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetWithAndGet(t *testing.T) {
	var s buffer.Set
	assert.True(t, s.IsEmpty())

	s, err := s.With(buffer.PaneJS, "console.log(1)")
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", s.Script)
	assert.False(t, s.IsEmpty())

	got, err := s.Get(buffer.PaneJS)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", got)

	_, err = s.With("ruby", "x")
	assert.ErrorIs(t, err, buffer.ErrUnknownPane)
	_, err = s.Get("ruby")
	assert.ErrorIs(t, err, buffer.ErrUnknownPane)
}

func TestStoreRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		set  buffer.Set
	}{
		{"empty", buffer.Set{}},
		{"partial", buffer.Set{Markup: "<p>hi</p>"}},
		{"full", buffer.Set{Markup: "<p>hi</p>", Style: "p{color:red}", Script: "console.log('ok')"}},
		{"unicode", buffer.Set{Markup: "<p>héllo ✓</p>", Script: "const s = `\"quoted\"`;"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mock := clock.NewMock()
			mock.Set(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))

			store := buffer.NewStore(storage.NewMemory(), buffer.WithClock(mock))

			rec, err := store.Save(ctx, tt.set)
			require.NoError(t, err)
			assert.Equal(t, "2026-10-19T12:00:00Z", rec.Timestamp)

			loaded, ok := store.Load(ctx)
			require.True(t, ok)
			assert.Equal(t, tt.set, loaded.Buffers())
			assert.True(t, loaded.SavedAt().Equal(mock.Now()))
		})
	}
}

func TestStoreSingleSlot(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	store := buffer.NewStore(kv, buffer.WithKey("slot"))

	_, err := store.Save(ctx, buffer.Set{Markup: "one"})
	require.NoError(t, err)
	_, err = store.Save(ctx, buffer.Set{Markup: "two"})
	require.NoError(t, err)

	loaded, ok := store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "two", loaded.HTML)
	assert.Equal(t, "slot", store.Key())

	raw, found, err := kv.Get(ctx, "slot")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"html":"two","css":"","js":"","timestamp":"`+loaded.Timestamp+`"}`, string(raw))
}

func TestStoreLoadRecovers(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"invalid json", []byte("{not json")},
		{"wrong field type", []byte(`{"html": 42}`)},
		{"truncated", []byte(`{"html":"<p>`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := storage.NewMemory()
			require.NoError(t, kv.Put(ctx, buffer.DefaultKey, tt.raw))

			rec, ok := buffer.NewStore(kv).Load(ctx)
			assert.False(t, ok)
			assert.Equal(t, buffer.Set{}, rec.Buffers())
		})
	}

	t.Run("missing", func(t *testing.T) {
		rec, ok := buffer.NewStore(storage.NewMemory()).Load(context.Background())
		assert.False(t, ok)
		assert.True(t, rec.Buffers().IsEmpty())
	})

	t.Run("backend error", func(t *testing.T) {
		rec, ok := buffer.NewStore(failingKV{}).Load(context.Background())
		assert.False(t, ok)
		assert.True(t, rec.Buffers().IsEmpty())
	})
}

func TestStoreSaveError(t *testing.T) {
	_, err := buffer.NewStore(failingKV{}).Save(context.Background(), buffer.Set{})
	assert.Error(t, err)
}

func TestSavedAtMalformed(t *testing.T) {
	rec := buffer.SavedSession{Timestamp: "yesterday"}
	assert.True(t, rec.SavedAt().IsZero())
}
