package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/internal/parser"
)

func newTestProcessor(opts TagOptions, l *Listener) *Processor {
	streets := parser.NewStreetParserFromPrimitives([]*model.Primitive{road("way/100", "улица Ленина")}, nil)
	return NewProcessor(streets, parser.NewHouseNumberParser(nil), opts, l)
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain", `{"address": "г Москва, ул Ленина, д 5"}`, "г Москва, ул Ленина, д 5"},
		{"no space", `{"address":"ул Мира, 3"}`, "ул Мира, 3"},
		{"nested", `{"feature":{"attrs":{"cn":"77:01","address":"ул Мира, д 1"}}}`, "ул Мира, д 1"},
		{"unicode escapes", `{"address": "\u0443\u043b \u041c\u0438\u0440\u0430"}`, "ул Мира"},
		{"escaped document", `"{\"address\": \"ул Мира, д 2\"}"`, "ул Мира, д 2"},
		{"first wins", `{"address":"a","other":{"address":"b"}}`, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAddress(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractAddress_Missing(t *testing.T) {
	for _, body := range []string{``, `{}`, `{"features":[]}`, `{"address": ""}`, `{"address": null}`} {
		_, err := ExtractAddress(body)
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, ErrParse), body)
	}
}

func TestUnescapeJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, `plain`},
		{`a\"b\\c\/d`, `a"b\c/d`},
		{`\n\t\r\b\f`, "\n\t\r\b\f"},
		{`\u0414\u043e\u043c`, "Дом"},
		{`\ud83d\ude00`, "😀"},
		{`\ud83d x`, "\ufffd x"},
		{`\\u0041`, `\u0041`},
		{`\u00`, `\u00`},
		{`\x`, `\x`},
		{`trailing\`, `trailing\`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unescapeJSON(tt.in), tt.in)
	}
}

func TestProcessor_Handle(t *testing.T) {
	p := newTestProcessor(TagOptions{}, nil)
	b := NewBuilding(building("way/1", 37.6, 55.75, nil))

	require.NoError(t, p.Handle(Response{Building: b, Body: `{"address": "г Москва, ул Ленина, д 5"}`}))
	assert.Equal(t, model.Tags{
		model.KeyHouseNumber: "5",
		model.KeyStreet:      "улица Ленина",
		model.KeySourceAddr:  "ЕГРН",
	}, b.ProposedTags())
}

func TestProcessor_Handle_ExistingHouseNumber(t *testing.T) {
	p := newTestProcessor(TagOptions{SourceValue: "cadastre"}, nil)
	b := NewBuilding(building("way/1", 37.6, 55.75, model.Tags{model.KeyHouseNumber: "4"}))

	require.NoError(t, p.Handle(Response{Building: b, Body: `{"address": "г Москва, улица Ленина, д. 5а"}`}))
	tags := b.ProposedTags()
	assert.Equal(t, "5А", tags[model.KeyHouseNumber])
	assert.Equal(t, "улица Ленина", tags[model.KeyStreet])
	assert.NotContains(t, tags, model.KeySourceAddr)
}

func TestProcessor_Handle_RawAddress(t *testing.T) {
	p := newTestProcessor(TagOptions{RecordRawAddress: true}, nil)
	b := NewBuilding(building("way/1", 37.6, 55.75, nil))
	require.NoError(t, p.Handle(Response{Building: b, Body: `{"address": "г Москва, ул Ленина"}`}))
	// no house number: only the raw address is proposed
	assert.Equal(t, model.Tags{DefaultRawAddressKey: "г Москва, ул Ленина"}, b.ProposedTags())

	tagged := NewBuilding(building("way/2", 37.6, 55.75, model.Tags{DefaultRawAddressKey: "old"}))
	require.NoError(t, p.Handle(Response{Building: tagged, Body: `{"address": "г Москва, ул Ленина"}`}))
	assert.Empty(t, tagged.ProposedTags())
}

func TestProcessor_Handle_UnresolvedStreet(t *testing.T) {
	var streets []string
	l := &Listener{OnNotFoundStreet: func(s string) { streets = append(streets, s) }}
	p := newTestProcessor(TagOptions{}, l)
	b := NewBuilding(building("way/1", 37.6, 55.75, nil))

	require.NoError(t, p.Handle(Response{Building: b, Body: `{"address": "г Москва, ул Садовая-Кудринская, д 5"}`}))
	assert.Empty(t, b.ProposedTags())
	assert.Equal(t, []string{"садовая-кудринская"}, streets)
}

func TestProcessor_Handle_NoAddress(t *testing.T) {
	p := newTestProcessor(TagOptions{RecordRawAddress: true}, nil)
	b := NewBuilding(building("way/1", 37.6, 55.75, nil))

	err := p.Handle(Response{Building: b, Body: `{"features": []}`})
	assert.True(t, errors.Is(err, ErrParse))
	assert.Empty(t, b.ProposedTags())
}

func TestProcessor_Process(t *testing.T) {
	p := newTestProcessor(TagOptions{}, nil)
	buildings := buildingsAt(5)

	in := make(chan Response, len(buildings))
	for i, b := range buildings {
		body := `{"address": "г Москва, ул Ленина, д 1"}`
		if i%2 == 1 {
			body = `{}`
		}
		in <- Response{Building: b, Body: body}
	}
	close(in)

	require.NoError(t, p.Process(context.Background(), in))
	for i, b := range buildings {
		assert.Equal(t, i%2 == 0, b.HasProposals(), b.ID())
	}
}

func TestProcessor_ProcessCancelled(t *testing.T) {
	p := newTestProcessor(TagOptions{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Response)

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = p.Process(ctx, in)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}
