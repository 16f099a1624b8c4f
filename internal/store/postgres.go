package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/command-center/hive/internal/db"
	"github.com/command-center/hive/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgInsertExploration = `INSERT INTO explorations (id, campaign_id, question, source_model, claims, evidence, confidence, uncertainty, follow_ups, raw_response, tokens_used, cost_dollars, predicted_value, curation_status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	pgChargeCampaign    = `UPDATE campaigns SET budget_spent = budget_spent + $1, exploration_count = exploration_count + 1 WHERE id = $2 RETURNING budget_spent, exploration_count`
	pgInsertEvent       = `INSERT INTO campaign_events (id, campaign_id, event_type, event_data, created_at) VALUES ($1, $2, $3, $4, $5)`
	pgGetCampaign       = `SELECT id, user_id, name, root_question, context, budget_cap, exploration_cap, models, status, budget_spent, exploration_count, created_at, started_at, completed_at, error_message FROM campaigns WHERE id = $1`
	pgListEvents        = `SELECT id, campaign_id, event_type, event_data, created_at FROM campaign_events WHERE campaign_id = $1 ORDER BY seq`
	pgListExplorations  = `SELECT id, campaign_id, question, source_model, claims, evidence, confidence, uncertainty, follow_ups, raw_response, tokens_used, cost_dollars, predicted_value, curation_status, curated_at, created_at FROM explorations WHERE campaign_id = $1 ORDER BY seq`
)

// preparedStatements lists queries to prepare on each new connection. These
// run once per unit of work during a campaign.
var preparedStatements = map[string]string{
	"insert_exploration": pgInsertExploration,
	"charge_campaign":    pgChargeCampaign,
	"insert_event":       pgInsertEvent,
	"get_campaign":       pgGetCampaign,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id           TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	root_question     TEXT NOT NULL,
	context           TEXT NOT NULL DEFAULT '',
	budget_cap        DOUBLE PRECISION NOT NULL,
	exploration_cap   INTEGER NOT NULL,
	models            JSONB NOT NULL DEFAULT '[]',
	status            TEXT NOT NULL DEFAULT 'pending',
	budget_spent      DOUBLE PRECISION NOT NULL DEFAULT 0,
	exploration_count INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	error_message     TEXT
);

CREATE TABLE IF NOT EXISTS explorations (
	seq             BIGSERIAL UNIQUE,
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	campaign_id     TEXT NOT NULL REFERENCES campaigns(id),
	question        TEXT NOT NULL,
	source_model    TEXT NOT NULL,
	claims          JSONB NOT NULL DEFAULT '[]',
	evidence        JSONB NOT NULL DEFAULT '[]',
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	uncertainty     TEXT NOT NULL DEFAULT '',
	follow_ups      JSONB NOT NULL DEFAULT '[]',
	raw_response    TEXT NOT NULL DEFAULT '',
	tokens_used     INTEGER NOT NULL DEFAULT 0,
	cost_dollars    DOUBLE PRECISION NOT NULL DEFAULT 0,
	predicted_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	curation_status TEXT NOT NULL DEFAULT 'pending',
	curated_at      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS briefings (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	campaign_id        TEXT NOT NULL UNIQUE REFERENCES campaigns(id),
	summary            TEXT NOT NULL,
	key_findings       JSONB NOT NULL DEFAULT '[]',
	gaps               JSONB NOT NULL DEFAULT '[]',
	next_actions       JSONB NOT NULL DEFAULT '[]',
	total_explorations INTEGER NOT NULL DEFAULT 0,
	valuable_count     INTEGER NOT NULL DEFAULT 0,
	total_cost         DOUBLE PRECISION NOT NULL DEFAULT 0,
	slack_sent         BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaign_events (
	seq         BIGSERIAL UNIQUE,
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	event_type  TEXT NOT NULL,
	event_data  JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_campaigns_user_id ON campaigns(user_id);
CREATE INDEX IF NOT EXISTS idx_explorations_campaign_id ON explorations(campaign_id, seq);
CREATE INDEX IF NOT EXISTS idx_campaign_events_campaign_id ON campaign_events(campaign_id, seq);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Campaigns ---

func (s *PostgresStore) CreateCampaign(ctx context.Context, nc model.NewCampaign) (*model.Campaign, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	models := nc.Models
	if models == nil {
		models = []string{}
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal models")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, user_id, name, root_question, context, budget_cap, exploration_cap, models, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, nc.UserID, nc.Name, nc.RootQuestion, nc.Context, nc.BudgetCap, nc.ExplorationCap, modelsJSON,
		string(model.CampaignStatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert campaign")
	}

	return &model.Campaign{
		ID:             id,
		UserID:         nc.UserID,
		Name:           nc.Name,
		RootQuestion:   nc.RootQuestion,
		Context:        nc.Context,
		BudgetCap:      nc.BudgetCap,
		ExplorationCap: nc.ExplorationCap,
		Models:         models,
		Status:         model.CampaignStatusPending,
		CreatedAt:      now,
	}, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := scanPgCampaign(s.pool.QueryRow(ctx, pgGetCampaign, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "campaign %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT id, user_id, name, root_question, context, budget_cap, exploration_cap, models, status, budget_spent, exploration_count, created_at, started_at, completed_at, error_message FROM campaigns WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanPgCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id string, upd model.StatusUpdate) error {
	sets := []string{"status = $1"}
	args := []any{string(upd.Status)}

	if upd.StartedAt != nil {
		args = append(args, *upd.StartedAt)
		sets = append(sets, fmt.Sprintf("started_at = $%d", len(args)))
	}
	if upd.CompletedAt != nil {
		args = append(args, *upd.CompletedAt)
		sets = append(sets, fmt.Sprintf("completed_at = $%d", len(args)))
	}
	if upd.ErrorMessage != nil {
		args = append(args, nullString(*upd.ErrorMessage))
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE campaigns SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	if len(upd.From) > 0 {
		args = append(args, statusStrings(upd.From))
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, "campaigns", "campaign", id)
	}
	return nil
}

// --- Explorations ---

func (s *PostgresStore) RecordExploration(ctx context.Context, e *model.Exploration) (Totals, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	normalizeExploration(e)

	claimsJSON, err := json.Marshal(e.Claims)
	if err != nil {
		return Totals{}, eris.Wrap(err, "postgres: marshal claims")
	}
	evidenceJSON, err := json.Marshal(e.Evidence)
	if err != nil {
		return Totals{}, eris.Wrap(err, "postgres: marshal evidence")
	}
	followUpsJSON, err := json.Marshal(e.FollowUps)
	if err != nil {
		return Totals{}, eris.Wrap(err, "postgres: marshal follow ups")
	}

	var totals Totals
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, pgInsertExploration,
			e.ID, e.CampaignID, e.Question, e.SourceModel, claimsJSON, evidenceJSON,
			e.Confidence, e.Uncertainty, followUpsJSON, e.RawResponse, e.TokensUsed,
			e.CostDollars, e.PredictedValue, string(e.CurationStatus), e.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert exploration")
		}

		err := tx.QueryRow(ctx, pgChargeCampaign, e.CostDollars, e.CampaignID).
			Scan(&totals.BudgetSpent, &totals.ExplorationCount)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "campaign %s", e.CampaignID)
		}
		return eris.Wrapf(err, "postgres: charge campaign %s", e.CampaignID)
	})
	if err != nil {
		return Totals{}, err
	}
	return totals, nil
}

func (s *PostgresStore) ListExplorations(ctx context.Context, campaignID string) ([]model.Exploration, error) {
	rows, err := s.pool.Query(ctx, pgListExplorations, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list explorations")
	}
	defer rows.Close()

	var out []model.Exploration
	for rows.Next() {
		var e model.Exploration
		var claimsJSON, evidenceJSON, followUpsJSON []byte
		var curated *time.Time
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Question, &e.SourceModel, &claimsJSON, &evidenceJSON,
			&e.Confidence, &e.Uncertainty, &followUpsJSON, &e.RawResponse, &e.TokensUsed,
			&e.CostDollars, &e.PredictedValue, &e.CurationStatus, &curated, &e.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exploration")
		}
		if err := unmarshalExploration(&e, claimsJSON, evidenceJSON, followUpsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal exploration")
		}
		e.CuratedAt = curated
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list explorations iterate")
}

func (s *PostgresStore) CurateExploration(ctx context.Context, id string, status model.CurationStatus) error {
	if !status.Reviewable() {
		return eris.Errorf("postgres: invalid curation status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE explorations SET curation_status = $1, curated_at = $2 WHERE id = $3 AND curated_at IS NULL`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: curate exploration %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, "explorations", "exploration", id)
	}
	return nil
}

// --- Briefings ---

func (s *PostgresStore) CreateBriefing(ctx context.Context, b *model.Briefing) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	findings, gaps, actions, err := marshalBriefingLists(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal briefing")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO briefings (id, campaign_id, summary, key_findings, gaps, next_actions, total_explorations, valuable_count, total_cost, slack_sent, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.CampaignID, b.Summary, findings, gaps, actions,
		b.TotalExplorations, b.ValuableCount, b.TotalCost, b.SlackSent, b.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert briefing for %s", b.CampaignID)
}

func (s *PostgresStore) GetBriefing(ctx context.Context, campaignID string) (*model.Briefing, error) {
	var b model.Briefing
	var findings, gaps, actions []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, campaign_id, summary, key_findings, gaps, next_actions, total_explorations, valuable_count, total_cost, slack_sent, created_at FROM briefings WHERE campaign_id = $1`,
		campaignID,
	).Scan(&b.ID, &b.CampaignID, &b.Summary, &findings, &gaps, &actions,
		&b.TotalExplorations, &b.ValuableCount, &b.TotalCost, &b.SlackSent, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "briefing for campaign %s", campaignID)
		}
		return nil, eris.Wrapf(err, "postgres: get briefing %s", campaignID)
	}
	if err := unmarshalBriefingLists(&b, findings, gaps, actions); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal briefing")
	}
	return &b, nil
}

func (s *PostgresStore) MarkBriefingSent(ctx context.Context, briefingID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE briefings SET slack_sent = true WHERE id = $1`, briefingID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark briefing sent %s", briefingID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "briefing %s", briefingID)
	}
	return nil
}

// --- Events ---

func (s *PostgresStore) AppendEvent(ctx context.Context, ev *model.CampaignEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	data := ev.EventData
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event data")
	}

	_, err = s.pool.Exec(ctx, pgInsertEvent, ev.ID, ev.CampaignID, string(ev.EventType), dataJSON, ev.CreatedAt)
	return eris.Wrapf(err, "postgres: insert %s event", ev.EventType)
}

func (s *PostgresStore) ListEvents(ctx context.Context, campaignID string) ([]model.CampaignEvent, error) {
	rows, err := s.pool.Query(ctx, pgListEvents, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.CampaignEvent
	for rows.Next() {
		var ev model.CampaignEvent
		var dataJSON []byte
		if err := rows.Scan(&ev.ID, &ev.CampaignID, &ev.EventType, &dataJSON, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &ev.EventData); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal event data")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

// --- helpers ---

// missOrConflict distinguishes a missing row from a guarded update that
// matched no row.
func (s *PostgresStore) missOrConflict(ctx context.Context, table, entity, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, pgx.Identifier{table}.Sanitize()),
		id,
	).Scan(&exists)
	if err != nil {
		return eris.Wrapf(err, "postgres: lookup %s %s", entity, id)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return eris.Wrapf(ErrConflict, "%s %s", entity, id)
}

func scanPgCampaign(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	var modelsJSON []byte
	var errMsg *string

	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.RootQuestion, &c.Context, &c.BudgetCap, &c.ExplorationCap,
		&modelsJSON, &c.Status, &c.BudgetSpent, &c.ExplorationCount, &c.CreatedAt, &c.StartedAt,
		&c.CompletedAt, &errMsg)
	if err != nil {
		return nil, err
	}
	if len(modelsJSON) > 0 {
		if err := json.Unmarshal(modelsJSON, &c.Models); err != nil {
			return nil, eris.Wrap(err, "unmarshal models")
		}
	}
	if errMsg != nil {
		c.ErrorMessage = *errMsg
	}
	return &c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
