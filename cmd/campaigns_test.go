//go:build !integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/store"
	"github.com/command-center/hive/internal/tabular"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "hive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestLoadCampaignFile(t *testing.T) {
	path := writeTemp(t, "campaign.yaml", `
name: Grid storage
root_question: "  What limits grid-scale storage?  "
context: utility planning
budget_cap: 5
exploration_cap: 20
`)

	nc, err := loadCampaignFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Grid storage", nc.Name)
	assert.Equal(t, "What limits grid-scale storage?", nc.RootQuestion)
	assert.InDelta(t, 5.0, nc.BudgetCap, 1e-9)
	assert.Equal(t, 20, nc.ExplorationCap)
	assert.Equal(t, model.DefaultModels, nc.Models)
}

func TestLoadCampaignFile_Errors(t *testing.T) {
	_, err := loadCampaignFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadCampaignFile(writeTemp(t, "bad.yaml", "name: [unclosed"))
	assert.Error(t, err)

	_, err = loadCampaignFile(writeTemp(t, "invalid.yaml", "name: x\nbudget_cap: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root_question is required")
}

func TestLoadCampaignSheet(t *testing.T) {
	path := writeTemp(t, "campaigns.csv",
		"name,root_question,budget_cap,exploration_cap,models\n"+
			"A,Why?,1,5,claude\n"+
			"B,How?,2,10,\n")

	ncs, err := loadCampaignSheet(path)
	require.NoError(t, err)
	require.Len(t, ncs, 2)
	assert.Equal(t, []string{"claude"}, ncs[0].Models)
	assert.Equal(t, model.DefaultModels, ncs[1].Models)

	_, err = loadCampaignSheet(writeTemp(t, "bad.csv", "name,root_question,budget_cap,exploration_cap\nA,Why?,0,5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget_cap must be > 0")

	_, err = loadCampaignSheet(writeTemp(t, "empty.csv", "name,root_question\n"))
	assert.Error(t, err)
}

func TestCreateCampaigns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ids, err := createCampaigns(ctx, st, []model.NewCampaign{
		{Name: "A", RootQuestion: "Why?", BudgetCap: 1, ExplorationCap: 5, Models: []string{"claude"}},
		{Name: "B", RootQuestion: "How?", BudgetCap: 1, ExplorationCap: 5, Models: []string{"gemini"}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	c, err := st.GetCampaign(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "B", c.Name)
	assert.Equal(t, model.CampaignStatusPending, c.Status)
}

func TestExportExplorations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c, err := st.CreateCampaign(ctx, model.NewCampaign{Name: "A", RootQuestion: "Why?", BudgetCap: 1, ExplorationCap: 5})
	require.NoError(t, err)
	_, err = st.RecordExploration(ctx, &model.Exploration{
		CampaignID: c.ID, Question: "Why?", SourceModel: "claude", Claims: []string{"x"}, PredictedValue: 0.7,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := exportExplorations(ctx, st, c.ID, tabular.FormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "source_model")
	assert.Contains(t, buf.String(), "claude")

	_, err = exportExplorations(ctx, st, "missing", tabular.FormatCSV, &buf)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
