//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/btmullin/supertl2/internal/domain"
)

func setupDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("supertl"),
		postgrescontainer.WithUsername("supertl"),
		postgrescontainer.WithPassword("supertl"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestRepositoryReconcileRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	repo := NewRepository(pool)

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, time.June, 1, 11, 0, 0, 0, time.UTC)
	distance := 10000.0
	elapsed := 3600
	offset := -300

	activity := domain.Activity{
		StartTimeUTC: start,
		ElapsedTimeS: &elapsed,
		MovingTimeS:  &elapsed,
		DistanceM:    &distance,
		Name:         "Morning Run",
		Sport:        "Run",
		TZName:       "America/Chicago",
		UTCOffsetMin: &offset,
		TZSource:     domain.TZSourceStrava,
		CreatedAtUTC: now,
		UpdatedAtUTC: now,
	}
	source := domain.ActivitySource{
		Source:           domain.SourceStrava,
		SourceActivityID: "111",
		StartTimeUTC:     &start,
		StartTimeLocal:   "2025-06-01T06:00:00",
		ElapsedTimeS:     &elapsed,
		DistanceM:        &distance,
		Sport:            "Run",
		PayloadHash:      "hash-1",
		IngestedAtUTC:    now,
		MatchConfidence:  domain.ConfidenceExact,
	}
	activityID, err := repo.CreateWithSource(ctx, activity, source)
	require.NoError(t, err)
	require.Positive(t, activityID)

	// The unique pair is found again, and a second insert collides.
	found, err := repo.FindSource(ctx, domain.SourceStrava, "111")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, activityID, found.ActivityID)
	require.Equal(t, "hash-1", found.PayloadHash)

	_, err = repo.CreateWithSource(ctx, activity, source)
	require.ErrorIs(t, err, domain.ErrDuplicateSourceRecord)

	// Candidate search sees the activity inside the window, not outside.
	candidates, err := repo.FindCandidates(ctx, start.Add(90*time.Second), 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, activityID, candidates[0].ID)

	candidates, err = repo.FindCandidates(ctx, start.Add(20*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	require.Empty(t, candidates)

	// Linking a second source to the same canonical activity.
	stStart := start.Add(90 * time.Second)
	stSource := domain.ActivitySource{
		Source:           domain.SourceSportTracks,
		SourceActivityID: "st-1",
		StartTimeUTC:     &stStart,
		StartTimeLocal:   "2025-06-01T06:01:30",
		DistanceM:        &distance,
		PayloadHash:      "hash-2",
		IngestedAtUTC:    now,
		MatchConfidence:  domain.ConfidenceTimeMetric,
	}
	require.NoError(t, repo.LinkSource(ctx, activityID, stSource))

	sources, err := repo.Sources(ctx, activityID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
}

func TestRepositoryAnnotationRepairAndMerge(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	repo := NewRepository(pool).WithClock(func() time.Time { return now })
	annotations := NewAnnotationRepository(pool)

	start := time.Date(2025, time.June, 1, 11, 0, 0, 0, time.UTC)

	makeActivity := func(sourceID string, startUTC time.Time) int64 {
		activity := domain.Activity{
			StartTimeUTC: startUTC,
			Name:         "Workout " + sourceID,
			Sport:        "Run",
			CreatedAtUTC: now,
			UpdatedAtUTC: now,
		}
		src := domain.ActivitySource{
			Source:           domain.SourceStrava,
			SourceActivityID: sourceID,
			StartTimeUTC:     &startUTC,
			PayloadHash:      "hash-" + sourceID,
			IngestedAtUTC:    now,
			MatchConfidence:  domain.ConfidenceExact,
		}
		id, err := repo.CreateWithSource(ctx, activity, src)
		require.NoError(t, err)
		return id
	}

	keepID := makeActivity("201", start)
	dropID := makeActivity("202", start.Add(time.Hour))

	// Annotation saved before any import: no back-link yet.
	require.NoError(t, annotations.Upsert(ctx, domain.Annotation{
		SourceActivityID: "202",
		Notes:            "easy spin",
		Tags:             []string{"recovery"},
		Training:         domain.TrainingYes,
	}))

	stored, err := annotations.Get(ctx, "202")
	require.NoError(t, err)
	require.Nil(t, stored.CanonicalActivityID)

	// Repair resolves it through activity_source; a second pass is a no-op.
	linked, err := annotations.RepairLinks(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), linked)

	linked, err = annotations.RepairLinks(ctx)
	require.NoError(t, err)
	require.Zero(t, linked)

	stored, err = annotations.Get(ctx, "202")
	require.NoError(t, err)
	require.NotNil(t, stored.CanonicalActivityID)
	require.Equal(t, dropID, *stored.CanonicalActivityID)
	require.Equal(t, domain.TrainingYes, stored.Training)
	require.Equal(t, []string{"recovery"}, stored.Tags)

	// Merging moves the source link and the annotation back-link, then
	// removes the duplicate canonical row.
	require.NoError(t, repo.Merge(ctx, keepID, dropID))

	gone, err := repo.Get(ctx, dropID)
	require.NoError(t, err)
	require.Nil(t, gone)

	sources, err := repo.Sources(ctx, keepID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	for _, src := range sources {
		if src.SourceActivityID == "202" {
			require.Equal(t, domain.ConfidenceManual, src.MatchConfidence)
		}
	}

	stored, err = annotations.Get(ctx, "202")
	require.NoError(t, err)
	require.NotNil(t, stored.CanonicalActivityID)
	require.Equal(t, keepID, *stored.CanonicalActivityID)

	// The merge stamps the surviving row with the injected clock.
	kept, err := repo.Get(ctx, keepID)
	require.NoError(t, err)
	require.Equal(t, now, kept.UpdatedAtUTC)
}

func TestRepositoryListTrainingBetween(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	repo := NewRepository(pool)
	annotations := NewAnnotationRepository(pool)

	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

	create := func(sourceID string, startUTC time.Time) {
		activity := domain.Activity{StartTimeUTC: startUTC, Sport: "Run", CreatedAtUTC: now, UpdatedAtUTC: now}
		src := domain.ActivitySource{
			Source:           domain.SourceStrava,
			SourceActivityID: sourceID,
			StartTimeUTC:     &startUTC,
			PayloadHash:      "hash-" + sourceID,
			IngestedAtUTC:    now,
			MatchConfidence:  domain.ConfidenceExact,
		}
		_, err := repo.CreateWithSource(ctx, activity, src)
		require.NoError(t, err)
	}

	create("301", time.Date(2025, time.June, 2, 11, 0, 0, 0, time.UTC))
	create("302", time.Date(2025, time.June, 3, 11, 0, 0, 0, time.UTC))

	// Only 301 is flagged as training.
	require.NoError(t, annotations.Upsert(ctx, domain.Annotation{
		SourceActivityID: "301",
		Training:         domain.TrainingYes,
	}))
	require.NoError(t, annotations.Upsert(ctx, domain.Annotation{
		SourceActivityID: "302",
		Training:         domain.TrainingNo,
	}))
	_, err := annotations.RepairLinks(ctx)
	require.NoError(t, err)

	from := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC)
	training, err := repo.ListTrainingBetween(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, training, 1)
	require.Equal(t, time.Date(2025, time.June, 2, 11, 0, 0, 0, time.UTC), training[0].StartTimeUTC)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
