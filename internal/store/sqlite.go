package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/command-center/hive/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them applied and
	// serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	root_question     TEXT NOT NULL,
	context           TEXT NOT NULL DEFAULT '',
	budget_cap        REAL NOT NULL,
	exploration_cap   INTEGER NOT NULL,
	models            TEXT NOT NULL DEFAULT '[]',
	status            TEXT NOT NULL DEFAULT 'pending',
	budget_spent      REAL NOT NULL DEFAULT 0,
	exploration_count INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at        DATETIME,
	completed_at      DATETIME,
	error_message     TEXT
);

CREATE TABLE IF NOT EXISTS explorations (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	campaign_id     TEXT NOT NULL REFERENCES campaigns(id),
	question        TEXT NOT NULL,
	source_model    TEXT NOT NULL,
	claims          TEXT NOT NULL DEFAULT '[]',
	evidence        TEXT NOT NULL DEFAULT '[]',
	confidence      REAL NOT NULL DEFAULT 0.5,
	uncertainty     TEXT NOT NULL DEFAULT '',
	follow_ups      TEXT NOT NULL DEFAULT '[]',
	raw_response    TEXT NOT NULL DEFAULT '',
	tokens_used     INTEGER NOT NULL DEFAULT 0,
	cost_dollars    REAL NOT NULL DEFAULT 0,
	predicted_value REAL NOT NULL DEFAULT 0,
	curation_status TEXT NOT NULL DEFAULT 'pending',
	curated_at      DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS briefings (
	id                 TEXT PRIMARY KEY,
	campaign_id        TEXT NOT NULL UNIQUE REFERENCES campaigns(id),
	summary            TEXT NOT NULL,
	key_findings       TEXT NOT NULL DEFAULT '[]',
	gaps               TEXT NOT NULL DEFAULT '[]',
	next_actions       TEXT NOT NULL DEFAULT '[]',
	total_explorations INTEGER NOT NULL DEFAULT 0,
	valuable_count     INTEGER NOT NULL DEFAULT 0,
	total_cost         REAL NOT NULL DEFAULT 0,
	slack_sent         INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS campaign_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	event_type  TEXT NOT NULL,
	event_data  TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_campaigns_user_id ON campaigns(user_id);
CREATE INDEX IF NOT EXISTS idx_explorations_campaign_id ON explorations(campaign_id);
CREATE INDEX IF NOT EXISTS idx_campaign_events_campaign_id ON campaign_events(campaign_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Campaigns ---

const sqliteCampaignColumns = `id, user_id, name, root_question, context, budget_cap, exploration_cap, models, status, budget_spent, exploration_count, created_at, started_at, completed_at, error_message`

func (s *SQLiteStore) CreateCampaign(ctx context.Context, nc model.NewCampaign) (*model.Campaign, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	models := nc.Models
	if models == nil {
		models = []string{}
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal models")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, user_id, name, root_question, context, budget_cap, exploration_cap, models, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nc.UserID, nc.Name, nc.RootQuestion, nc.Context, nc.BudgetCap, nc.ExplorationCap,
		string(modelsJSON), string(model.CampaignStatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert campaign")
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

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCampaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT ` + sqliteCampaignColumns + ` FROM campaigns WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) UpdateCampaignStatus(ctx context.Context, id string, upd model.StatusUpdate) error {
	sets := []string{"status = ?"}
	args := []any{string(upd.Status)}

	if upd.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *upd.CompletedAt)
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullString(*upd.ErrorMessage))
	}

	query := `UPDATE campaigns SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)
	if len(upd.From) > 0 {
		query += ` AND status IN (` + placeholders(len(upd.From)) + `)`
		for _, st := range statusStrings(upd.From) {
			args = append(args, st)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign status %s", id)
	}
	return s.checkGuarded(ctx, res, "campaigns", "campaign", id)
}

// --- Explorations ---

func (s *SQLiteStore) RecordExploration(ctx context.Context, e *model.Exploration) (Totals, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	normalizeExploration(e)

	claimsJSON, err := json.Marshal(e.Claims)
	if err != nil {
		return Totals{}, eris.Wrap(err, "sqlite: marshal claims")
	}
	evidenceJSON, err := json.Marshal(e.Evidence)
	if err != nil {
		return Totals{}, eris.Wrap(err, "sqlite: marshal evidence")
	}
	followUpsJSON, err := json.Marshal(e.FollowUps)
	if err != nil {
		return Totals{}, eris.Wrap(err, "sqlite: marshal follow ups")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Totals{}, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO explorations (id, campaign_id, question, source_model, claims, evidence, confidence, uncertainty, follow_ups, raw_response, tokens_used, cost_dollars, predicted_value, curation_status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CampaignID, e.Question, e.SourceModel, string(claimsJSON), string(evidenceJSON),
		e.Confidence, e.Uncertainty, string(followUpsJSON), e.RawResponse, e.TokensUsed,
		e.CostDollars, e.PredictedValue, string(e.CurationStatus), e.CreatedAt,
	)
	if err != nil {
		return Totals{}, eris.Wrap(err, "sqlite: insert exploration")
	}

	var totals Totals
	err = tx.QueryRowContext(ctx,
		`UPDATE campaigns SET budget_spent = budget_spent + ?, exploration_count = exploration_count + 1 WHERE id = ? RETURNING budget_spent, exploration_count`,
		e.CostDollars, e.CampaignID,
	).Scan(&totals.BudgetSpent, &totals.ExplorationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Totals{}, eris.Wrapf(ErrNotFound, "campaign %s", e.CampaignID)
	}
	if err != nil {
		return Totals{}, eris.Wrapf(err, "sqlite: charge campaign %s", e.CampaignID)
	}

	if err := tx.Commit(); err != nil {
		return Totals{}, eris.Wrap(err, "sqlite: commit exploration")
	}
	return totals, nil
}

func (s *SQLiteStore) ListExplorations(ctx context.Context, campaignID string) ([]model.Exploration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, question, source_model, claims, evidence, confidence, uncertainty, follow_ups, raw_response, tokens_used, cost_dollars, predicted_value, curation_status, curated_at, created_at
		 FROM explorations WHERE campaign_id = ? ORDER BY seq`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list explorations")
	}
	defer rows.Close()

	var out []model.Exploration
	for rows.Next() {
		var e model.Exploration
		var claimsJSON, evidenceJSON, followUpsJSON string
		var curated sql.NullTime
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Question, &e.SourceModel, &claimsJSON, &evidenceJSON,
			&e.Confidence, &e.Uncertainty, &followUpsJSON, &e.RawResponse, &e.TokensUsed,
			&e.CostDollars, &e.PredictedValue, &e.CurationStatus, &curated, &e.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exploration")
		}
		if err := unmarshalExploration(&e, []byte(claimsJSON), []byte(evidenceJSON), []byte(followUpsJSON)); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal exploration")
		}
		if curated.Valid {
			t := curated.Time
			e.CuratedAt = &t
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list explorations iterate")
}

func (s *SQLiteStore) CurateExploration(ctx context.Context, id string, status model.CurationStatus) error {
	if !status.Reviewable() {
		return eris.Errorf("sqlite: invalid curation status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE explorations SET curation_status = ?, curated_at = ? WHERE id = ? AND curated_at IS NULL`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: curate exploration %s", id)
	}
	return s.checkGuarded(ctx, res, "explorations", "exploration", id)
}

// --- Briefings ---

func (s *SQLiteStore) CreateBriefing(ctx context.Context, b *model.Briefing) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	findings, gaps, actions, err := marshalBriefingLists(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal briefing")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO briefings (id, campaign_id, summary, key_findings, gaps, next_actions, total_explorations, valuable_count, total_cost, slack_sent, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CampaignID, b.Summary, string(findings), string(gaps), string(actions),
		b.TotalExplorations, b.ValuableCount, b.TotalCost, b.SlackSent, b.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert briefing for %s", b.CampaignID)
}

func (s *SQLiteStore) GetBriefing(ctx context.Context, campaignID string) (*model.Briefing, error) {
	var b model.Briefing
	var findings, gaps, actions string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, campaign_id, summary, key_findings, gaps, next_actions, total_explorations, valuable_count, total_cost, slack_sent, created_at FROM briefings WHERE campaign_id = ?`,
		campaignID,
	).Scan(&b.ID, &b.CampaignID, &b.Summary, &findings, &gaps, &actions,
		&b.TotalExplorations, &b.ValuableCount, &b.TotalCost, &b.SlackSent, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "briefing for campaign %s", campaignID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get briefing %s", campaignID)
	}
	if err := unmarshalBriefingLists(&b, []byte(findings), []byte(gaps), []byte(actions)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal briefing")
	}
	return &b, nil
}

func (s *SQLiteStore) MarkBriefingSent(ctx context.Context, briefingID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE briefings SET slack_sent = 1 WHERE id = ?`, briefingID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark briefing sent %s", briefingID)
	}
	return checkRowsAffected(res, "briefing", briefingID)
}

// --- Events ---

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *model.CampaignEvent) error {
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
		return eris.Wrap(err, "sqlite: marshal event data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaign_events (id, campaign_id, event_type, event_data, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.CampaignID, string(ev.EventType), string(dataJSON), ev.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert %s event", ev.EventType)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, campaignID string) ([]model.CampaignEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, event_type, event_data, created_at FROM campaign_events WHERE campaign_id = ? ORDER BY seq`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.CampaignEvent
	for rows.Next() {
		var ev model.CampaignEvent
		var dataJSON string
		if err := rows.Scan(&ev.ID, &ev.CampaignID, &ev.EventType, &dataJSON, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if err := json.Unmarshal([]byte(dataJSON), &ev.EventData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal event data")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// checkGuarded reports ErrNotFound or ErrConflict when a guarded update
// matched no row.
func (s *SQLiteStore) checkGuarded(ctx context.Context, res sql.Result, table, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return eris.Wrapf(err, "sqlite: lookup %s %s", entity, id)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return eris.Wrapf(ErrConflict, "%s %s", entity, id)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCampaign(row scannable) (*model.Campaign, error) {
	var c model.Campaign
	var modelsJSON string
	var started, completed sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.RootQuestion, &c.Context, &c.BudgetCap, &c.ExplorationCap,
		&modelsJSON, &c.Status, &c.BudgetSpent, &c.ExplorationCount, &c.CreatedAt, &started, &completed, &errMsg)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(modelsJSON), &c.Models); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal models")
	}
	if started.Valid {
		t := started.Time
		c.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	c.ErrorMessage = errMsg.String
	return &c, nil
}
