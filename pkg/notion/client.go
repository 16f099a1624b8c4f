// Package notion keeps one page per record in a Notion database. Records
// are keyed by a rich text property and every API call shares one rate
// limiter.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Key names the rich text property that identifies a record and its value.
type Key struct {
	Property string
	Value    string
}

// Result reports which page an upsert wrote to.
type Result struct {
	PageID  string
	Created bool
}

// Client upserts keyed pages into a database.
type Client interface {
	Upsert(ctx context.Context, dbID string, key Key, props notionapi.Properties) (Result, error)
}

// Option configures the client.
type Option func(*client)

// WithRateLimit overrides the default of 3 requests per second. Zero
// disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

type client struct {
	db      notionapi.DatabaseService
	pages   notionapi.PageService
	limiter *rate.Limiter
}

// NewClient creates a client for the given integration token.
func NewClient(token string, opts ...Option) Client {
	api := notionapi.NewClient(notionapi.Token(token))
	return newClient(api.Database, api.Page, opts...)
}

func newClient(db notionapi.DatabaseService, pages notionapi.PageService, opts ...Option) *client {
	c := &client{db: db, pages: pages, limiter: rate.NewLimiter(3, 1)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert writes props to the page whose key property equals key.Value,
// creating the page when none matches. The key property is always set.
func (c *client) Upsert(ctx context.Context, dbID string, key Key, props notionapi.Properties) (Result, error) {
	if key.Property == "" || key.Value == "" {
		return Result{}, eris.New("notion: upsert needs a key")
	}

	pageID, err := c.find(ctx, dbID, key)
	if err != nil {
		return Result{}, err
	}

	merged := make(notionapi.Properties, len(props)+1)
	for k, v := range props {
		merged[k] = v
	}
	merged[key.Property] = Text(key.Value)

	if pageID != "" {
		if err := c.wait(ctx); err != nil {
			return Result{}, err
		}
		page, err := c.pages.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: merged})
		if err != nil {
			return Result{}, eris.Wrapf(err, "notion: update page %s", pageID)
		}
		return Result{PageID: string(page.ID)}, nil
	}

	if err := c.wait(ctx); err != nil {
		return Result{}, err
	}
	page, err := c.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: merged,
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "notion: create page")
	}
	return Result{PageID: string(page.ID), Created: true}, nil
}

// find returns the id of the first page matching key, or "".
func (c *client) find(ctx context.Context, dbID string, key Key) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.db.Query(ctx, notionapi.DatabaseID(dbID), &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: key.Property,
			RichText: &notionapi.TextFilterCondition{Equals: key.Value},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrapf(err, "notion: find %s = %s", key.Property, key.Value)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func (c *client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "notion: rate limit")
}
