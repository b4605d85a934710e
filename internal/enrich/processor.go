package enrich

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/internal/parser"
)

// ErrParse marks a response body without an address field.
var ErrParse = eris.New("enrich: response has no address field")

var addressField = regexp.MustCompile(`address"\s*:\s*"(.+?)"`)

// Default tag settings.
const (
	DefaultRawAddressKey = "addr:RU:egrn"
	DefaultSourceValue   = "ЕГРН"
)

// TagOptions controls the tags a processor proposes besides the address.
type TagOptions struct {
	RecordRawAddress bool
	RawAddressKey    string
	SourceValue      string
}

func (o TagOptions) withDefaults() TagOptions {
	if o.RawAddressKey == "" {
		o.RawAddressKey = DefaultRawAddressKey
	}
	if o.SourceValue == "" {
		o.SourceValue = DefaultSourceValue
	}
	return o
}

// Processor turns cadastral responses into proposed address tags.
type Processor struct {
	streets  *parser.StreetParser
	houses   *parser.HouseNumberParser
	opts     TagOptions
	listener *Listener
	log      *zap.Logger
}

// NewProcessor creates a processor over the given parsers.
func NewProcessor(streets *parser.StreetParser, houses *parser.HouseNumberParser, opts TagOptions, l *Listener) *Processor {
	return &Processor{
		streets:  streets,
		houses:   houses,
		opts:     opts.withDefaults(),
		listener: l,
		log:      zap.L().With(zap.String("component", "processor")),
	}
}

// Process handles every response of in concurrently and returns once the
// stream is closed and all handlers have finished. Parse failures are logged
// and do not stop the batch. On cancellation the remaining responses are left
// unread and ctx.Err() is returned.
func (p *Processor) Process(ctx context.Context, in <-chan Response) error {
	var g errgroup.Group
	var cancelled error

loop:
	for {
		select {
		case r, ok := <-in:
			if !ok {
				break loop
			}
			g.Go(func() error {
				if err := p.Handle(r); err != nil {
					p.log.Warn("parse cadastral response",
						zap.String("id", r.Building.ID()),
						zap.Error(err))
				}
				return nil
			})
		case <-ctx.Done():
			cancelled = ctx.Err()
			break loop
		}
	}

	_ = g.Wait()
	return cancelled
}

// Handle proposes tags for one response. It returns an error wrapping
// ErrParse when the body has no address field.
func (p *Processor) Handle(r Response) error {
	address, err := ExtractAddress(r.Body)
	if err != nil {
		return err
	}

	b := r.Building
	if p.opts.RecordRawAddress && !b.Primitive.HasKey(p.opts.RawAddressKey) {
		b.Propose(p.opts.RawAddressKey, address)
	}

	street := p.streets.Parse(address)
	house := p.houses.Parse(address)

	switch {
	case street.Name != "":
		if house != "" {
			b.Propose(model.KeyHouseNumber, house)
			b.Propose(model.KeyStreet, street.Name)
			if !b.Primitive.HasKey(model.KeyHouseNumber) {
				b.Propose(model.KeySourceAddr, p.opts.SourceValue)
			}
		}
	case street.Extracted != "":
		p.log.Debug("street not resolved",
			zap.String("id", b.ID()),
			zap.String("street", street.Extracted))
		p.listener.notFoundStreet(street.Extracted)
	}
	return nil
}

// ExtractAddress returns the value of the first "address" string field of a
// JSON-escaped response body.
func ExtractAddress(body string) (string, error) {
	m := addressField.FindStringSubmatch(unescapeJSON(body))
	if m == nil {
		return "", eris.Wrapf(ErrParse, "body of %d bytes", len(body))
	}
	return m[1], nil
}

// jsonEscapes matches a run of JSON string escape sequences.
var jsonEscapes = regexp.MustCompile(`(?:\\(?:u[0-9a-fA-F]{4}|["\\/bfnrt]))+`)

// unescapeJSON resolves JSON string escapes throughout s. Unknown or
// truncated escapes are kept as written.
func unescapeJSON(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return jsonEscapes.ReplaceAllStringFunc(s, func(run string) string {
		var out string
		if err := json.Unmarshal([]byte(`"`+run+`"`), &out); err != nil {
			return run
		}
		return out
	})
}
