package analysis

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

func TestFailTaskRecordsError(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.NewMigrationManager(db).RunMigrations())

	tasks := repository.NewAnalysisTaskRepository(db)
	task := &models.AnalysisTask{SkillName: "generate_legs", TaskType: models.TaskTypeIncremental, Cutoff: time.Now().Unix()}
	require.NoError(t, tasks.Create(ctx, task))

	boom := errors.New("boom")
	a := NewBaseAnalyzer(db, "generate_legs")
	assert.ErrorIs(t, a.FailTask(task.ID, boom), boom)

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestFailTaskLogsUnwritableTaskRow(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	boom := errors.New("boom")
	a := NewBaseAnalyzer(db, "cluster_legs")
	assert.ErrorIs(t, a.FailTask(42, boom), boom)
	assert.Contains(t, buf.String(), "[cluster_legs] Failed to mark task as failed (task_id=42)")
}
