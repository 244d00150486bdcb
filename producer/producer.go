package producer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStalledPagination means a page claimed more data but gave no usable
	// continuation token.
	ErrStalledPagination = errors.New("producer: pagination stalled")
	ErrNilSource         = errors.New("producer: nil source")
	ErrNilSubmitter      = errors.New("producer: nil submitter")
)

// Bulk walks src page by page until a page reports HasMore == false and
// submits every item to sub as soon as its page arrives. It returns the number
// of submitted items.
//
// Once enumeration is over the progress total is set to the source-reported
// total, or to the number of submitted items when the source reports none.
// A fetch or submit error stops the walk; items already submitted stay
// submitted.
func Bulk[T any](ctx context.Context, src PageSource[T], sub Submitter[T], opts ...Option) (int, error) {
	if src == nil {
		return 0, ErrNilSource
	}
	if sub == nil {
		return 0, ErrNilSubmitter
	}
	cfg := newConfig(opts...)

	start := time.Now()
	submitted, reported, pages := 0, 0, 0
	token := ""
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return submitted, err
		}

		page, err := fetchPage(ctx, cfg, src, PageRequest{PageSize: cfg.pageSize, PageToken: token})
		if err != nil {
			return submitted, fmt.Errorf("fetch page %d: %w", pages+1, err)
		}
		pages++
		if page.Total > 0 {
			reported = page.Total
		}

		for _, item := range page.Items {
			if err := sub.Run(item); err != nil {
				return submitted, fmt.Errorf("submit item %d: %w", submitted, err)
			}
			submitted++
		}

		if cfg.logEvery > 0 && pages%cfg.logEvery == 0 {
			cfg.logger.Info().
				Int("pages", pages).
				Int("submitted", submitted).
				Int("total", reported).
				Msg("Feed progress")
		}

		if !page.HasMore {
			break
		}
		if page.NextToken == "" || page.NextToken == token {
			return submitted, fmt.Errorf("%w: page %d has no new token", ErrStalledPagination, pages)
		}
		if _, dup := seen[page.NextToken]; dup {
			return submitted, fmt.Errorf("%w: token %q repeated at page %d", ErrStalledPagination, page.NextToken, pages)
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken
	}

	total := reported
	if total == 0 {
		total = submitted
	}
	if reported > 0 && reported != submitted {
		cfg.logger.Warn().
			Int("reported", reported).
			Int("submitted", submitted).
			Msg("Source total differs from items seen")
	}
	if cfg.progress != nil {
		cfg.progress.SetTotal(total)
	}

	cfg.logger.Info().
		Int("pages", pages).
		Int("submitted", submitted).
		Dur("duration", time.Since(start)).
		Msg("Feed complete")

	return submitted, nil
}

// Selection submits the items named by ids, resolving them one at a time in
// order. The progress total is set to len(ids) before the first resolve.
// A resolve failure stops the feed and names the offending id.
func Selection[T any](ctx context.Context, res Resolver[T], ids []string, sub Submitter[T], opts ...Option) (int, error) {
	if res == nil {
		return 0, ErrNilSource
	}
	if sub == nil {
		return 0, ErrNilSubmitter
	}
	cfg := newConfig(opts...)

	if cfg.progress != nil {
		cfg.progress.SetTotal(len(ids))
	}

	submitted := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return submitted, err
		}

		item, err := resolve(ctx, cfg, res, id)
		if err != nil {
			return submitted, fmt.Errorf("resolve %q: %w", id, err)
		}
		if err := sub.Run(item); err != nil {
			return submitted, fmt.Errorf("submit %q: %w", id, err)
		}
		submitted++

		if cfg.logEvery > 0 && (i+1)%cfg.logEvery == 0 {
			cfg.logger.Debug().
				Int("submitted", submitted).
				Int("total", len(ids)).
				Msg("Feed progress")
		}
	}

	cfg.logger.Debug().Int("submitted", submitted).Msg("Selection fed")
	return submitted, nil
}

func fetchPage[T any](ctx context.Context, cfg *config, src PageSource[T], req PageRequest) (Page[T], error) {
	if cfg.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.pageTimeout)
		defer cancel()
	}
	return src.FetchPage(ctx, req)
}

func resolve[T any](ctx context.Context, cfg *config, res Resolver[T], id string) (T, error) {
	if cfg.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.pageTimeout)
		defer cancel()
	}
	return res.Resolve(ctx, id)
}
