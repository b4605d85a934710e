package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/enrich"
	"github.com/sells-group/address-helper/internal/patterns"
	"github.com/sells-group/address-helper/internal/store"
	"github.com/sells-group/address-helper/pkg/egrn"
)

// openStore opens the configured store and makes sure its schema exists.
func openStore(ctx context.Context) (dataset.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadPatterns reads the configured catalogs, falling back to the bundled
// ones.
func loadPatterns() (house, street *patterns.List, err error) {
	house, err = patterns.LoadFile(patterns.House, cfg.Patterns.HousePath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load house patterns")
	}
	street, err = patterns.LoadFile(patterns.Street, cfg.Patterns.StreetPath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load street patterns")
	}
	return house, street, nil
}

func newRequester() (*egrn.Client, error) {
	tmpl, err := egrn.ParseTemplate(cfg.EGRN.URLTemplate)
	if err != nil {
		return nil, eris.Wrap(err, "egrn url template")
	}
	return egrn.NewClient(tmpl,
		egrn.WithUserAgent(cfg.EGRN.UserAgent),
		egrn.WithTimeout(cfg.EGRN.Timeout()),
		egrn.WithRateLimit(cfg.EGRN.RateLimit),
		egrn.WithInsecureSkipVerify(cfg.EGRN.InsecureSkipVerify),
	), nil
}

// batchOptions builds batch settings from configuration. Dataset and Writer
// are left to the caller.
func batchOptions() (enrich.Options, error) {
	house, street, err := loadPatterns()
	if err != nil {
		return enrich.Options{}, err
	}
	req, err := newRequester()
	if err != nil {
		return enrich.Options{}, err
	}
	policy, err := enrich.ParseDoublePolicy(cfg.Tags.DoublePolicy)
	if err != nil {
		return enrich.Options{}, err
	}
	return enrich.Options{
		Requester:      req,
		HousePatterns:  house,
		StreetPatterns: street,
		Limit:          cfg.EGRN.RequestLimit,
		Delay:          cfg.EGRN.RequestDelay(),
		Tags: enrich.TagOptions{
			RecordRawAddress: cfg.Tags.RecordRawAddress,
			RawAddressKey:    cfg.Tags.RawAddressKey,
			SourceValue:      cfg.Tags.SourceValue,
		},
		ClearDoubles: cfg.Tags.ClearDoubles,
		DoublePolicy: policy,
	}, nil
}

// progressListener logs batch progress.
func progressListener(total int) *enrich.Listener {
	var done atomic.Int64
	return &enrich.Listener{
		OnResponse: func(status int) {
			zap.L().Debug("cadastral response",
				zap.Int("status", status),
				zap.Int64("done", done.Add(1)),
				zap.Int("total", total))
		},
		OnResponseContinue: func() {
			zap.L().Info("all cadastral requests finished", zap.Int("total", total))
		},
		OnNotFoundStreet: func(street string) {
			zap.L().Info("street not found in dataset", zap.String("street", street))
		},
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
