package storage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jobwatch/internal/integrity"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/storage"
	"github.com/ashita-ai/jobwatch/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	ctx := context.Background()
	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

func uniqueSettings() model.Settings {
	return model.Settings{RoleKeywords: []string{"role-" + testutil.Tag()}}
}

func uniqueKey(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// recordKey writes one key for one run through the per-key transaction.
func recordKey(t *testing.T, run model.Run, key string, p model.Posting, included bool) model.SeenRecord {
	t.Helper()
	ctx := context.Background()
	var rec model.SeenRecord
	err := testDB.InKeyTx(ctx, func(ctx context.Context, k *storage.KeyTx) error {
		var err error
		now := time.Now().UTC()
		rec, err = k.Touch(ctx, key, run.RunID, now)
		if err != nil {
			return err
		}
		if err := k.PutLatest(ctx, key, p, now); err != nil {
			return err
		}
		label, err := k.LatestFeedbackLabel(ctx, key)
		if err != nil {
			return err
		}
		return k.PutAudit(ctx, model.AuditEntry{
			RunID:         run.RunID,
			DedupeKey:     key,
			Included:      included,
			Reasons:       []model.ReasonToken{model.KeywordIncludeReason(model.FamilyRole, model.FieldTitle, "engineer")},
			FeedbackLabel: label,
			SettingsHash:  run.SettingsHash,
			SourceType:    p.SourceType,
			CompanyName:   p.CompanyName,
			Title:         p.Title,
			Location:      p.Location,
			URL:           p.URL,
		})
	})
	require.NoError(t, err)
	return rec
}

func posting(title string) model.Posting {
	return model.Posting{
		CompanyName: "Acme",
		Title:       title,
		Location:    "Austin, TX",
		URL:         "https://acme.com/jobs/" + title,
		SourceType:  "greenhouse",
		WorkMode:    model.WorkModeHybrid,
	}
}

func TestBeginAndFinishRun(t *testing.T) {
	ctx := context.Background()
	s := uniqueSettings()

	run, err := testDB.BeginRun(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, uuid.Version(7), run.RunID.Version())

	wantHash, err := integrity.SettingsHash(s)
	require.NoError(t, err)
	assert.Equal(t, wantHash, run.SettingsHash)

	snapshot, err := testDB.GetRunSettings(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, s.WithDefaults(), snapshot)

	stats := model.RunStats{Fetched: 3, Unique: 2, New: 2, Included: 1, Excluded: 1,
		SourceErrors: map[string]string{"Acme:lever": "timeout"}}
	digest := "abc"
	finished, err := testDB.FinishRun(ctx, run.RunID, model.RunStatusCompleted, stats, &digest)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, finished.Status)
	require.NotNil(t, finished.FinishedAt)
	assert.Equal(t, stats, finished.Stats)

	_, err = testDB.FinishRun(ctx, run.RunID, model.RunStatusFailed, model.RunStats{}, nil)
	require.ErrorIs(t, err, storage.ErrRunFinished)

	got, err := testDB.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status, "finished runs are immutable")
	require.NotNil(t, got.AuditDigest)
	assert.Equal(t, "abc", *got.AuditDigest)

	_, err = testDB.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLatestRunIsExplicit(t *testing.T) {
	ctx := context.Background()

	first, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	latest, err := testDB.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, latest.RunID)

	second, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	latest, err = testDB.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest.RunID)

	for _, r := range []model.Run{first, second} {
		_, err := testDB.FinishRun(ctx, r.RunID, model.RunStatusCompleted, model.RunStats{}, nil)
		require.NoError(t, err)
	}

	runs, total, err := testDB.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 2)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, first.RunID, runs[1].RunID)
}

func TestSeenCountCountsDistinctRuns(t *testing.T) {
	ctx := context.Background()
	key := uniqueKey("seen")

	runA, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	first := recordKey(t, runA, key, posting("Engineer"), true)
	assert.Equal(t, 1, first.SeenCount)

	again := recordKey(t, runA, key, posting("Engineer"), true)
	assert.Equal(t, 1, again.SeenCount, "same run does not count twice")

	runB, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	second := recordKey(t, runB, key, posting("Engineer"), false)
	assert.Equal(t, 2, second.SeenCount)
	assert.True(t, second.FirstSeen.Equal(first.FirstSeen), "first_seen never moves")
	assert.False(t, second.LastSeen.Before(first.LastSeen))
	assert.Equal(t, runB.RunID.String(), second.LastRunID)

	rec, err := testDB.GetSeen(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.SeenCount)

	known, err := testDB.KnownKeys(ctx)
	require.NoError(t, err)
	assert.Contains(t, known, key)

	latest, err := testDB.LatestAuditFor(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, runB.RunID, latest.RunID)
	assert.False(t, latest.Included)
	assert.Equal(t, []string{"role:title:engineer"}, model.ReasonStrings(latest.Reasons))

	job, err := testDB.GetJob(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", job.Posting.Title)
	assert.Equal(t, model.WorkModeHybrid, job.Posting.WorkMode)
}

func TestOverrides(t *testing.T) {
	ctx := context.Background()
	key := uniqueKey("override")

	_, err := testDB.GetOverride(ctx, key)
	require.ErrorIs(t, err, storage.ErrNotFound)

	o, err := testDB.SetOverride(ctx, key, model.OverrideInclude, "great team")
	require.NoError(t, err)
	assert.Equal(t, model.OverrideInclude, o.Action)

	o2, err := testDB.SetOverride(ctx, key, model.OverrideExclude, "")
	require.NoError(t, err)
	assert.Equal(t, model.OverrideExclude, o2.Action)
	assert.True(t, o2.CreatedAt.Equal(o.CreatedAt))

	got, err := testDB.GetOverride(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.OverrideExclude, got.Action)

	_, err = testDB.SetOverride(ctx, key, "maybe", "")
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))

	cleared, err := testDB.ClearOverride(ctx, key)
	require.NoError(t, err)
	assert.True(t, cleared)
	cleared, err = testDB.ClearOverride(ctx, key)
	require.NoError(t, err)
	assert.False(t, cleared, "clearing twice is a no-op")
}

func TestFeedbackLatestWins(t *testing.T) {
	ctx := context.Background()
	key := uniqueKey("feedback")

	_, err := testDB.LatestFeedback(ctx, key)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = testDB.RecordFeedback(ctx, key, model.LabelInclude, "")
	require.NoError(t, err)
	second, err := testDB.RecordFeedback(ctx, key, model.LabelExclude, "seniority")
	require.NoError(t, err)

	latest, err := testDB.LatestFeedback(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, model.LabelExclude, latest.Label)
	assert.Equal(t, "seniority", latest.ReasonCategory)

	// Equal timestamps fall back to the greater id.
	ts := time.Now().UTC().Add(time.Hour)
	_, err = testDB.Pool().Exec(ctx,
		`INSERT INTO job_feedback (dedupe_key, label, created_at) VALUES ($1, 'ignore', $2), ($1, 'applied', $2)`,
		key, ts)
	require.NoError(t, err)
	latest, err = testDB.LatestFeedback(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.LabelApplied, latest.Label)

	rows, total, err := testDB.ListFeedback(ctx, key, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, rows, 4)

	require.NoError(t, testDB.DeleteFeedback(ctx, latest.ID))
	require.ErrorIs(t, testDB.DeleteFeedback(ctx, latest.ID), storage.ErrNotFound)
	latest, err = testDB.LatestFeedback(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.LabelIgnore, latest.Label)

	_, err = testDB.RecordFeedback(ctx, key, "love", "")
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))

	stats, err := testDB.FeedbackStats(ctx, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Total, 3)
	assert.GreaterOrEqual(t, stats.DistinctJobs, 1)
	assert.Len(t, stats.Recent, 2)
}

func TestSettingsGroups(t *testing.T) {
	ctx := context.Background()
	tag := "group-" + testutil.Tag()

	a := model.Settings{RoleKeywords: []string{tag}}
	aEquivalent := model.Settings{RoleKeywords: []string{" " + tag + " ", tag}, FilterMode: model.FilterModeSmart}
	b := model.Settings{RoleKeywords: []string{tag}, FilterMode: model.FilterModeScore}

	r1, err := testDB.BeginRun(ctx, a)
	require.NoError(t, err)
	r2, err := testDB.BeginRun(ctx, b)
	require.NoError(t, err)
	r3, err := testDB.BeginRun(ctx, aEquivalent)
	require.NoError(t, err)
	assert.Equal(t, r1.SettingsHash, r3.SettingsHash)
	assert.NotEqual(t, r1.SettingsHash, r2.SettingsHash)

	groups, err := testDB.ListSettingsGroups(ctx)
	require.NoError(t, err)

	var mine []model.SettingsGroup
	for _, g := range groups {
		if g.SettingsHash == r1.SettingsHash || g.SettingsHash == r2.SettingsHash {
			mine = append(mine, g)
		}
	}
	require.Len(t, mine, 2)
	assert.Equal(t, r1.SettingsHash, mine[0].SettingsHash, "most recent group first")
	assert.Equal(t, r3.RunID, mine[0].RepresentativeRunID)
	assert.Equal(t, 2, mine[0].RunCount)
	assert.Equal(t, r2.RunID, mine[1].RepresentativeRunID)
	assert.Contains(t, mine[1].Label, "score")
}

func TestInbox(t *testing.T) {
	ctx := context.Background()
	title := "Inbox " + testutil.Tag()
	key := uniqueKey("inbox")
	win := model.InboxWindow{Since: time.Now().Add(-60 * 24 * time.Hour)}

	run, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	p := posting(title)
	p.URL = "https://acme.com/careers/" + key
	recordKey(t, run, key, p, true)

	rows, total, err := testDB.ListInbox(ctx, model.InboxFilters{Query: title}, win, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, key, rows[0].DedupeKey)
	assert.True(t, rows[0].Active)
	require.NotNil(t, rows[0].LastOutcome)
	assert.True(t, *rows[0].LastOutcome)
	assert.Empty(t, rows[0].FeedbackLabel)

	rows, total, err = testDB.ListInbox(ctx, model.InboxFilters{Query: "ACME.com/careers/" + key}, win, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total, "search matches the url")
	require.Len(t, rows, 1)
	assert.Equal(t, key, rows[0].DedupeKey)

	_, err = testDB.RecordFeedback(ctx, key, model.LabelApplied, "")
	require.NoError(t, err)

	rows, _, err = testDB.ListInbox(ctx, model.InboxFilters{Query: title}, win, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows, "labeled keys leave the unreviewed queue")

	rows, _, err = testDB.ListInbox(ctx, model.InboxFilters{Query: title, Status: model.InboxInclude}, win, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.LabelInclude, rows[0].FeedbackLabel, "applied displays as include")

	_, err = testDB.Pool().Exec(ctx,
		`UPDATE jobs_seen SET last_seen = now() - interval '90 days' WHERE dedupe_key = $1`, key)
	require.NoError(t, err)

	rows, _, err = testDB.ListInbox(ctx, model.InboxFilters{Query: title, Status: model.InboxInclude}, win, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows, "expired keys are hidden")

	rows, _, err = testDB.ListInbox(ctx, model.InboxFilters{Query: title, Status: model.InboxInclude, IncludeInactive: true}, win, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, _, err = testDB.ListInbox(ctx, model.InboxFilters{Query: title, Status: model.InboxAll}, win, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1, "all lists inactive keys too")
	assert.False(t, rows[0].Active)

	one, err := testDB.InboxRollup(ctx, key, win)
	require.NoError(t, err)
	assert.Equal(t, 1, one.SeenCount)
	assert.False(t, one.Active)

	stats, err := testDB.InboxStats(ctx, win)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Total, 1)
	assert.GreaterOrEqual(t, stats.Total, stats.Active)
}

func TestInboxActiveCap(t *testing.T) {
	ctx := context.Background()
	title := "Cap " + testutil.Tag()

	run, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	keys := []string{uniqueKey("cap-a"), uniqueKey("cap-b"), uniqueKey("cap-c")}
	future := time.Now().UTC().AddDate(100, 0, 0)
	for i, key := range keys {
		recordKey(t, run, key, posting(fmt.Sprintf("%s %d", title, i)), true)
		// Push these keys past everything else in the shared database so the
		// window below contains only them; keys[2] is the newest.
		_, err := testDB.Pool().Exec(ctx,
			`UPDATE jobs_seen SET last_seen = $2 WHERE dedupe_key = $1`, key, future.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	// The newest key is reviewed, so it is the first to give way.
	_, err = testDB.RecordFeedback(ctx, keys[2], model.LabelExclude, "")
	require.NoError(t, err)

	win := model.InboxWindow{Since: time.Now().AddDate(99, 0, 0), MaxActive: 2}
	active := func() map[string]bool {
		rows, _, err := testDB.ListInbox(ctx, model.InboxFilters{Query: title, Status: model.InboxAll}, win, 10, 0)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		out := map[string]bool{}
		for _, r := range rows {
			out[r.DedupeKey] = r.Active
		}
		return out
	}
	assert.Equal(t, map[string]bool{keys[0]: true, keys[1]: true, keys[2]: false}, active())

	stats, err := testDB.InboxStats(ctx, win)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 2, stats.Unreviewed)
	assert.Equal(t, 0, stats.Exclude)

	// With only unreviewed keys competing, the oldest gives way.
	win.MaxActive = 1
	assert.Equal(t, map[string]bool{keys[0]: false, keys[1]: true, keys[2]: false}, active())

	win.MaxActive = 0
	assert.Equal(t, map[string]bool{keys[0]: true, keys[1]: true, keys[2]: true}, active())

	// Restore real timestamps so other tests see a sane inbox.
	_, err = testDB.Pool().Exec(ctx, `UPDATE jobs_seen SET last_seen = now() WHERE dedupe_key = ANY($1)`, keys)
	require.NoError(t, err)
}

func TestAuditReadsLiveOverride(t *testing.T) {
	ctx := context.Background()
	title := "Live " + testutil.Tag()
	key := uniqueKey("live")

	run, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	recordKey(t, run, key, posting(title), false)

	_, err = testDB.SetOverride(ctx, key, model.OverrideInclude, "after the run")
	require.NoError(t, err)
	_, err = testDB.RecordFeedback(ctx, key, model.LabelApplied, "")
	require.NoError(t, err)

	latest, err := testDB.LatestAuditFor(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, latest.OverrideAction, "the recorded column is what the run saw")
	assert.Equal(t, model.OverrideInclude, latest.CurrentOverride)
	assert.Equal(t, model.LabelInclude, latest.CurrentFeedback)

	entries, _, _, err := testDB.ListAudit(ctx, model.AuditFilters{RunID: &run.RunID, Query: title}, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.OverrideInclude, entries[0].CurrentOverride)

	// Search reaches the url and the reason tokens.
	entries, _, _, err = testDB.ListAudit(ctx, model.AuditFilters{RunID: &run.RunID, Query: "acme.com/jobs/" + title}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	entries, _, _, err = testDB.ListAudit(ctx, model.AuditFilters{RunID: &run.RunID, Query: "engineer"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the role reason mentions engineer")

	_, err = testDB.ClearOverride(ctx, key)
	require.NoError(t, err)
	forRun, err := testDB.AuditForRun(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, forRun, 1)
	assert.Empty(t, forRun[0].CurrentOverride, "a cleared override disappears on the next read")
}

func TestListJobsScopes(t *testing.T) {
	ctx := context.Background()
	title := "Scope " + testutil.Tag()

	old, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	oldKey := uniqueKey("scope-old")
	recordKey(t, old, oldKey, posting(title+" old"), true)

	run, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	recordKey(t, run, oldKey, posting(title+" old"), false)
	newKey := uniqueKey("scope-new")
	recordKey(t, run, newKey, posting(title+" new"), true)

	all, total, err := testDB.ListJobs(ctx, model.JobFilters{Scope: model.JobScopeAll, Query: title}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	fresh, _, err := testDB.ListJobs(ctx, model.JobFilters{Scope: model.JobScopeNew, Query: title}, 10, 0)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, newKey, fresh[0].DedupeKey)

	included, _, err := testDB.ListJobs(ctx, model.JobFilters{Scope: model.JobScopeSettings, Query: title}, 10, 0)
	require.NoError(t, err)
	require.Len(t, included, 1)
	assert.Equal(t, newKey, included[0].DedupeKey)

	_, _, err = testDB.ListJobs(ctx, model.JobFilters{Scope: "recent"}, 10, 0)
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))

	entries, n, runID, err := testDB.ListAudit(ctx, model.AuditFilters{Outcome: model.AuditOutcomeExcluded, Query: title}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, runID)
	assert.Equal(t, 1, n)
	require.Len(t, entries, 1)
	assert.Equal(t, oldKey, entries[0].DedupeKey)
}

func TestCompaniesMergeSources(t *testing.T) {
	ctx := context.Background()
	user := "user-" + testutil.Tag()

	c, err := testDB.UpsertCompany(ctx, model.Company{
		UserID:      user,
		CompanyName: "Acme",
		Sources: []model.Source{
			{Type: model.SourceGreenhouse, Slug: "acme"},
			{Type: model.SourceCareerURL, URL: "https://acme.com/careers?utm_source=x"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, c.Sources, 2)
	assert.Equal(t, model.FetchAll, c.FetchMode)

	merged, err := testDB.UpsertCompany(ctx, model.Company{
		UserID:      user,
		CompanyName: "ACME",
		FetchMode:   model.FetchFallback,
		Sources: []model.Source{
			{Type: model.SourceGreenhouse, Slug: "Acme", Notes: "renamed board"},
			{Type: model.SourceLever, Slug: "acme"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, merged.ID)
	require.Len(t, merged.Sources, 3)
	assert.Equal(t, "renamed board", merged.Sources[0].Notes)
	assert.Equal(t, model.FetchFallback, merged.FetchMode)

	updated, err := testDB.UpsertSource(ctx, user, c.ID, model.Source{Type: model.SourceCareerURL, URL: "https://www.acme.com/careers/"})
	require.NoError(t, err)
	assert.Len(t, updated.Sources, 3, "same canonical url replaces in place")

	removed, err := testDB.RemoveSource(ctx, user, c.ID, "lever:acme")
	require.NoError(t, err)
	assert.Len(t, removed.Sources, 2)

	_, err = testDB.RemoveSource(ctx, user, c.ID, "lever:acme")
	require.ErrorIs(t, err, storage.ErrNotFound)

	list, err := testDB.ListCompanies(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, testDB.DeleteCompany(ctx, user, c.ID))
	_, err = testDB.GetCompany(ctx, user, c.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	user := "user-" + testutil.Tag()

	empty, err := testDB.GetSettings(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{}, empty)

	minScore := 5
	s := model.Settings{RoleKeywords: []string{"frontend"}, MinScoreToInclude: &minScore, VisaRestrictionPhrases: []string{}}
	require.NoError(t, testDB.PutSettings(ctx, user, s))
	got, err := testDB.GetSettings(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.NotNil(t, got.VisaRestrictionPhrases, "explicit empty list survives storage")

	err = testDB.PutSettings(ctx, user, model.Settings{FilterMode: "fuzzy"})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestMLScores(t *testing.T) {
	ctx := context.Background()
	key := uniqueKey("ml")

	_, ok, err := testDB.LookupMLScore(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := testDB.UpsertMLScores(ctx, "model-1", map[string]float64{key: 0.42})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	score, ok, err := testDB.LookupMLScore(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.42, score.Prob, 1e-9)
	assert.Equal(t, "model-1", score.ModelID)

	_, err = testDB.UpsertMLScores(ctx, "model-2", map[string]float64{key: 1.5})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))

	count, modelID, err := testDB.MLScoreSummary(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)
	assert.Equal(t, "model-1", modelID)
}

func TestPruneRuns(t *testing.T) {
	ctx := context.Background()
	for range storage.MinRetainedRuns + 2 {
		run, err := testDB.BeginRun(ctx, uniqueSettings())
		require.NoError(t, err)
		recordKey(t, run, uniqueKey("prune"), posting("Prune"), true)
		_, err = testDB.FinishRun(ctx, run.RunID, model.RunStatusCompleted, model.RunStats{}, nil)
		require.NoError(t, err)
	}

	_, err := testDB.PruneRuns(ctx, 1)
	require.NoError(t, err)

	var finished, orphaned int
	require.NoError(t, testDB.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM runs WHERE status <> 'running'`).Scan(&finished))
	assert.LessOrEqual(t, finished, storage.MinRetainedRuns, "keep is floored")
	require.NoError(t, testDB.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM run_job_audit a WHERE NOT EXISTS (SELECT 1 FROM runs r WHERE r.run_id = a.run_id)`).Scan(&orphaned))
	assert.Zero(t, orphaned)
}
